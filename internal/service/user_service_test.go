package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"moviesite/internal/auth"
	"moviesite/internal/config"
	"moviesite/internal/database"
	"moviesite/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLimit = config.APILoginLimitConfig{Attempts: 3, Window: time.Minute}

func newUserService(store *MockUserStore, throttle *MockThrottle) *UserService {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	if throttle == nil {
		return NewUserService(store, tokens, nil, testLimit, testLogger())
	}
	return NewUserService(store, tokens, throttle, testLimit, testLogger())
}

func storedUser(t *testing.T, password string, active bool) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{ID: 7, Name: "Ann", Email: "ann@example.com", PasswordHash: hash, Role: models.RoleUser, IsActive: active}
}

func TestUserService_Register(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)

	store.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "ann@example.com" && u.Role == models.RoleUser && u.IsActive && u.PasswordHash != "secret-pass"
	})).Return(nil)

	sess, err := svc.Register(context.Background(), UserInput{
		Name: "Ann", Email: " Ann@Example.com ", Password: "secret-pass", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, models.RoleUser, sess.User.Role, "register never grants admin")
	store.AssertExpectations(t)
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc := newUserService(new(MockUserStore), nil)
	ctx := context.Background()

	cases := map[string]UserInput{
		"missing name":   {Email: "a@b.co", Password: "longenough"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "longenough"},
		"short password": {Name: "A", Email: "a@b.co", Password: "short"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUserService_RegisterDuplicate(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)
	store.On("CreateUser", mock.Anything, mock.Anything).Return(database.ErrDuplicate)

	_, err := svc.Register(context.Background(), UserInput{Name: "A", Email: "a@b.co", Password: "longenough"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success resets throttle", func(t *testing.T) {
		store := new(MockUserStore)
		throttle := new(MockThrottle)
		svc := newUserService(store, throttle)

		throttle.On("CheckRateLimit", mock.Anything, "login:ann@example.com", 3, time.Minute).Return(true, nil)
		throttle.On("Reset", mock.Anything, "login:ann@example.com").Return(nil)
		store.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(storedUser(t, "secret-pass", true), nil)

		sess, err := svc.Login(ctx, "ANN@example.com", "secret-pass")
		require.NoError(t, err)

		claims, err := auth.NewTokenManager("test-secret", time.Hour).Verify(sess.Token)
		require.NoError(t, err)
		id, _ := claims.UserID()
		assert.Equal(t, int64(7), id)
		throttle.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		store := new(MockUserStore)
		throttle := new(MockThrottle)
		svc := newUserService(store, throttle)

		throttle.On("CheckRateLimit", mock.Anything, mock.Anything, 3, time.Minute).Return(true, nil)
		store.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(storedUser(t, "secret-pass", true), nil)

		_, err := svc.Login(ctx, "ann@example.com", "wrong-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		throttle.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
	})

	t.Run("inactive", func(t *testing.T) {
		store := new(MockUserStore)
		svc := newUserService(store, nil)
		store.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(storedUser(t, "secret-pass", false), nil)

		_, err := svc.Login(ctx, "ann@example.com", "secret-pass")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("unknown email", func(t *testing.T) {
		store := new(MockUserStore)
		svc := newUserService(store, nil)
		store.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, database.ErrNotFound)

		_, err := svc.Login(ctx, "ghost@example.com", "whatever1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("throttled", func(t *testing.T) {
		store := new(MockUserStore)
		throttle := new(MockThrottle)
		svc := newUserService(store, throttle)
		throttle.On("CheckRateLimit", mock.Anything, mock.Anything, 3, time.Minute).Return(false, nil)

		_, err := svc.Login(ctx, "ann@example.com", "secret-pass")
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		store.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
	})

	t.Run("throttle error does not block", func(t *testing.T) {
		store := new(MockUserStore)
		throttle := new(MockThrottle)
		svc := newUserService(store, throttle)
		throttle.On("CheckRateLimit", mock.Anything, mock.Anything, 3, time.Minute).Return(false, errors.New("redis down"))
		throttle.On("Reset", mock.Anything, mock.Anything).Return(nil)
		store.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(storedUser(t, "secret-pass", true), nil)

		_, err := svc.Login(ctx, "ann@example.com", "secret-pass")
		assert.NoError(t, err)
	})
}

func TestUserService_Authenticate(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)
	user := storedUser(t, "secret-pass", true)

	token, _, err := svc.tokens.Issue(user)
	require.NoError(t, err)

	store.On("GetUserByID", mock.Anything, int64(7)).Return(user, nil).Once()
	got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	store.On("GetUserByID", mock.Anything, int64(7)).Return(nil, database.ErrNotFound).Once()
	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestUserService_Update(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)
	ctx := context.Background()

	bad := "superuser"
	_, err := svc.Update(ctx, 7, UserUpdate{Role: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	email := "Taken@Example.com"
	store.On("UpdateUser", mock.Anything, int64(7), models.UserChanges{Email: strPtr("taken@example.com")}).
		Return(nil, database.ErrDuplicate)
	_, err = svc.Update(ctx, 7, UserUpdate{Email: &email})
	assert.ErrorIs(t, err, ErrEmailTaken)

	name := "Annie"
	store.On("UpdateUser", mock.Anything, int64(8), mock.Anything).Return(nil, database.ErrNotFound)
	_, err = svc.Update(ctx, 8, UserUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserService_Delete(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, 7, 7), ErrSelfDelete)

	store.On("DeleteUser", mock.Anything, int64(8)).Return(database.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 7, 8), ErrNotFound)

	store.On("DeleteUser", mock.Anything, int64(9)).Return(nil)
	assert.NoError(t, svc.Delete(ctx, 7, 9))
}

func TestUserService_ListPagination(t *testing.T) {
	store := new(MockUserStore)
	svc := newUserService(store, nil)

	store.On("ListUsers", mock.Anything, models.UserQuery{Page: 2, Limit: 10}).Return([]*models.User{}, 11, nil)

	users, page, err := svc.List(context.Background(), models.UserQuery{Page: 2})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 2, page.Pages)
}

func strPtr(s string) *string { return &s }
