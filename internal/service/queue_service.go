package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"moviesite/internal/database"
	"moviesite/internal/domain"
	"moviesite/internal/events"
	"moviesite/internal/export"
	"moviesite/internal/models"
	"moviesite/internal/queue"

	"github.com/rs/zerolog"
)

const (
	defaultIntentLimit = 50
	maxIntentLimit     = 500
)

// DeadLetterReader lists intents mirrored out of the queue after exhausting retries.
type DeadLetterReader interface {
	Recent(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// QueueService is the operator view of the mutation queue.
type QueueService struct {
	queue       domain.QueueStore
	trigger     domain.Trigger
	events      domain.EventPublisher
	exporter    *export.Exporter
	deadLetters DeadLetterReader
	logger      *zerolog.Logger
}

func NewQueueService(
	queue domain.QueueStore,
	trigger domain.Trigger,
	events domain.EventPublisher,
	exporter *export.Exporter,
	deadLetters DeadLetterReader,
	logger *zerolog.Logger,
) *QueueService {
	return &QueueService{
		queue:       queue,
		trigger:     trigger,
		events:      events,
		exporter:    exporter,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// List returns intents in queue order, optionally restricted to one status.
// Failed intents are listed most recent first.
func (s *QueueService) List(ctx context.Context, status models.IntentStatus, limit int) ([]*models.Intent, error) {
	limit = clampLimit(limit)

	var (
		intents []*models.Intent
		err     error
	)
	switch status {
	case models.IntentFailed:
		intents, err = s.queue.FailedIntents(ctx, limit)
	case "", models.IntentPending, models.IntentProcessing, models.IntentCompleted:
		intents, err = s.queue.ListIntents(ctx, status, limit)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if err != nil {
		return nil, err
	}
	if intents == nil {
		intents = []*models.Intent{}
	}
	return intents, nil
}

func (s *QueueService) Get(ctx context.Context, id int64) (*models.Intent, error) {
	intent, err := s.queue.GetIntent(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return intent, err
}

// Requeue gives a failed intent a fresh retry budget and asks for a pass.
func (s *QueueService) Requeue(ctx context.Context, id int64) (*models.Intent, error) {
	intent, err := s.queue.RequeueIntent(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, database.ErrNotRequeueable):
		return nil, ErrNotRequeueable
	case err != nil:
		return nil, err
	}

	s.logger.Info().Int64("intent_id", id).Msg("intent requeued by operator")
	if s.events != nil {
		if err := s.events.PublishJSON(events.EventIntentRequeued, queue.IntentEvent(intent, 0)); err != nil {
			s.logger.Warn().Err(err).Msg("event handler failed")
		}
	}
	if s.trigger != nil {
		s.trigger.Trigger()
	}
	return intent, nil
}

// Stats reports the number of intents per status.
func (s *QueueService) Stats(ctx context.Context) (map[models.IntentStatus]int, error) {
	return s.queue.CountIntentsByStatus(ctx)
}

// Export writes the queue workbook to w.
func (s *QueueService) Export(ctx context.Context, w io.Writer, status models.IntentStatus) error {
	if s.exporter == nil {
		return errors.New("export is not configured")
	}
	return s.exporter.Write(ctx, w, export.Filter{Status: status})
}

// DeadLetters returns the most recent mirrored failures. Without redis the list is empty.
func (s *QueueService) DeadLetters(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if s.deadLetters == nil {
		return []json.RawMessage{}, nil
	}
	return s.deadLetters.Recent(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultIntentLimit
	}
	return min(limit, maxIntentLimit)
}
