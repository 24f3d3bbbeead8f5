package queue

import (
	"context"
	"sync"
	"time"

	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

// Pass runs one processing pass over the queue.
type Pass interface {
	ProcessQueue(ctx context.Context) error
}

// Scheduler runs passes on a fixed interval and on demand. Passes never
// overlap within one scheduler.
type Scheduler struct {
	pass     Pass
	interval time.Duration
	trigger  chan struct{}
	logger   *zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(pass Pass, interval time.Duration, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = models.DefaultPollInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		pass:     pass,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Start launches the polling loop and requests an initial pass. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.Trigger()
	s.logger.Info().Dur("interval", s.interval).Msg("queue scheduler started")
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("queue scheduler stopped")
}

// Trigger asks for a pass as soon as possible. It never blocks; requests made
// while one is already waiting collapse into it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		if err := s.pass.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("queue pass failed")
		}
	}
}
