package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"moviesite/internal/auth"
	"moviesite/internal/config"
	"moviesite/internal/database"
	"moviesite/internal/domain"
	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

// Session is what a successful register or login hands back.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// UserInput is a full account description for register and admin add.
type UserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

// UserUpdate is a partial account change; nil fields are left untouched.
type UserUpdate struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Password     *string `json:"password"`
	Role         *string `json:"role"`
	IsActive     *bool   `json:"is_active"`
	ProfileImage *string `json:"profile_image"`
}

type UserService struct {
	store    domain.UserStore
	tokens   *auth.TokenManager
	throttle domain.LoginThrottle
	limit    config.APILoginLimitConfig
	logger   *zerolog.Logger
}

func NewUserService(
	store domain.UserStore,
	tokens *auth.TokenManager,
	throttle domain.LoginThrottle,
	limit config.APILoginLimitConfig,
	logger *zerolog.Logger,
) *UserService {
	if limit.Attempts <= 0 {
		limit.Attempts = models.DefaultLoginAttempts
	}
	if limit.Window <= 0 {
		limit.Window = models.DefaultLoginWindow
	}
	return &UserService{
		store:    store,
		tokens:   tokens,
		throttle: throttle,
		limit:    limit,
		logger:   logger,
	}
}

// Register creates a regular active account and signs it in.
func (s *UserService) Register(ctx context.Context, in UserInput) (*Session, error) {
	in.Role = models.RoleUser
	in.IsActive = nil

	user, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("user registered")
	return s.session(user)
}

func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	key := "login:" + email
	if s.throttle != nil {
		allowed, err := s.throttle.CheckRateLimit(ctx, key, s.limit.Attempts, s.limit.Window)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login throttle unavailable")
		} else if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, key); err != nil {
			s.logger.Warn().Err(err).Msg("reset login throttle")
		}
	}
	return s.session(user)
}

// Authenticate resolves a session token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (s *UserService) List(ctx context.Context, q models.UserQuery) ([]*models.User, models.Pagination, error) {
	q.Page, q.Limit = models.NormalizePage(q.Page, q.Limit, models.DefaultUserPageSize)

	users, total, err := s.store.ListUsers(ctx, q)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, models.NewPagination(q.Page, q.Limit, total), nil
}

func (s *UserService) Search(ctx context.Context, q models.UserQuery) ([]*models.User, models.Pagination, error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.Search == "" {
		return nil, models.Pagination{}, fmt.Errorf("%w: search query is required", ErrValidation)
	}
	return s.List(ctx, q)
}

// Create is the admin path: any role, optionally inactive.
func (s *UserService) Create(ctx context.Context, in UserInput) (*models.User, error) {
	return s.create(ctx, in)
}

func (s *UserService) Update(ctx context.Context, id int64, in UserUpdate) (*models.User, error) {
	var changes models.UserChanges

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be blank", ErrValidation)
		}
		changes.Name = &name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		changes.Email = &email
	}
	if in.Password != nil {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		changes.PasswordHash = &hash
	}
	if in.Role != nil {
		if !models.ValidRole(*in.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, *in.Role)
		}
		changes.Role = in.Role
	}
	changes.IsActive = in.IsActive
	changes.ProfileImage = in.ProfileImage

	user, err := s.store.UpdateUser(ctx, id, changes)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, database.ErrDuplicate):
		return nil, ErrEmailTaken
	case err != nil:
		return nil, err
	}
	return user, nil
}

// Delete removes a user on behalf of actorID, who may not remove themselves.
func (s *UserService) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfDelete
	}
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		s.logger.Info().Int64("user_id", id).Int64("by", actorID).Msg("user deleted")
	}
	return err
}

func (s *UserService) create(ctx context.Context, in UserInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) session(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < models.MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidation, models.MinPasswordLength)
	}
	return auth.HashPassword(password)
}
