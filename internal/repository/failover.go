package repository

import (
	"context"
	"sync/atomic"
	"time"

	"moviesite/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverThrottle prefers the primary throttle and switches to the fallback
// while the primary errors, probing it again once a minute.
type FailoverThrottle struct {
	primary   domain.LoginThrottle
	fallback  domain.LoginThrottle
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverThrottle(primary, fallback domain.LoginThrottle, logger *zerolog.Logger) *FailoverThrottle {
	return &FailoverThrottle{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverThrottle) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	// Try to recover after 1 minute
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverThrottle) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary login throttle failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverThrottle) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary login throttle recovered")
	}
}

func (r *FailoverThrottle) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverThrottle) Reset(ctx context.Context, key string) error {
	// clear both so a stale fallback window does not outlive recovery
	fallbackErr := r.fallback.Reset(ctx, key)
	if r.usePrimary() {
		if err := r.primary.Reset(ctx, key); err != nil {
			r.markDown(err)
		} else {
			r.markUp()
		}
	}
	return fallbackErr
}
