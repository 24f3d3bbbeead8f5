package domain

import (
	"context"
	"time"

	"moviesite/internal/models"
)

// RecordStore is the primary store the queue applies intents to.
type RecordStore interface {
	CreateMovie(ctx context.Context, fields models.MovieFields) (*models.Movie, error)
	UpdateMovieByID(ctx context.Context, id int64, changes models.MovieChanges) error
	DeleteMovieByID(ctx context.Context, id int64) (bool, error)
}

// MovieReader serves catalogue reads straight from the record store.
type MovieReader interface {
	GetMovie(ctx context.Context, id int64) (*models.Movie, error)
	ListMovies(ctx context.Context, q models.MovieQuery) ([]*models.Movie, int, error)
}

// QueueStore persists mutation intents and their state transitions.
type QueueStore interface {
	CreateIntent(ctx context.Context, intent *models.Intent) error
	PendingIntents(ctx context.Context, limit int) ([]*models.Intent, error)
	ClaimIntent(ctx context.Context, id int64) (bool, error)
	SaveIntentOutcome(ctx context.Context, intent *models.Intent) error
	GetIntent(ctx context.Context, id int64) (*models.Intent, error)
	FailedIntents(ctx context.Context, limit int) ([]*models.Intent, error)
	ListIntents(ctx context.Context, status models.IntentStatus, limit int) ([]*models.Intent, error)
	RequeueIntent(ctx context.Context, id int64) (*models.Intent, error)
	CountIntentsByStatus(ctx context.Context) (map[models.IntentStatus]int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, changes models.UserChanges) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, q models.UserQuery) ([]*models.User, int, error)
}

// Enqueuer accepts intents for deferred application.
type Enqueuer interface {
	Enqueue(ctx context.Context, intent *models.Intent) (int64, error)
}

// Trigger requests an immediate processing pass without waiting for it.
type Trigger interface {
	Trigger()
}

// LoginThrottle limits sign-in attempts per key within a window.
type LoginThrottle interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterSink receives intents that exhausted their retries.
type DeadLetterSink interface {
	PushDeadLetter(ctx context.Context, intent *models.Intent) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// BlobStore keeps uploaded images and hands back their public URL.
type BlobStore interface {
	Save(ctx context.Context, data []byte, filename string) (string, error)
	Delete(ctx context.Context, url string) error
}
