package models

import "time"

const (
	// DefaultMaxRetries is the retry ceiling for a new intent.
	DefaultMaxRetries = 3

	// DefaultBatchSize is how many pending intents one processing pass picks up.
	DefaultBatchSize = 10

	// DefaultPollInterval is the scheduler tick.
	DefaultPollInterval = 5 * time.Second

	// DefaultStaleAfter is how long an intent may sit in processing before
	// startup recovery returns it to pending.
	DefaultStaleAfter = 5 * time.Minute
)

const (
	// DefaultMoviePageSize размер страницы фильмов по умолчанию
	DefaultMoviePageSize = 8

	// DefaultUserPageSize размер страницы пользователей по умолчанию
	DefaultUserPageSize = 10

	MaxPageSize = 100
)

const (
	MaxSceneImages = 6
	MinRating      = 0.0
	MaxRating      = 10.0

	MinPasswordLength = 8

	// DefaultTokenTTL время жизни токена авторизации
	DefaultTokenTTL = 7 * 24 * time.Hour
)

const (
	// DefaultLoginAttempts попыток входа в окне
	DefaultLoginAttempts = 10

	// DefaultLoginWindow окно ограничения попыток входа
	DefaultLoginWindow = 15 * time.Minute
)
