package queue

import (
	"context"
	"fmt"

	"moviesite/internal/domain"
	"moviesite/internal/events"
	"moviesite/internal/metrics"
	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

// Enqueuer accepts intents from the API layer: validate, persist, nudge the scheduler.
type Enqueuer struct {
	queue      domain.QueueStore
	trigger    domain.Trigger
	events     domain.EventPublisher
	maxRetries int
	logger     *zerolog.Logger
}

func NewEnqueuer(queue domain.QueueStore, trigger domain.Trigger, events domain.EventPublisher, maxRetries int, logger *zerolog.Logger) *Enqueuer {
	if maxRetries < 1 {
		maxRetries = models.DefaultMaxRetries
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Enqueuer{
		queue:      queue,
		trigger:    trigger,
		events:     events,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Enqueue durably stores intent as pending and returns its id. It does not wait
// for the intent to be applied. Invalid intents are rejected with
// models.ErrInvalidIntent and nothing is stored.
func (e *Enqueuer) Enqueue(ctx context.Context, intent *models.Intent) (int64, error) {
	if intent == nil {
		return 0, fmt.Errorf("%w: intent is nil", models.ErrInvalidIntent)
	}
	if intent.MaxRetries < 1 {
		intent.MaxRetries = e.maxRetries
	}
	if err := intent.Validate(); err != nil {
		return 0, err
	}

	if err := e.queue.CreateIntent(ctx, intent); err != nil {
		return 0, fmt.Errorf("persist intent: %w", err)
	}

	e.logger.Debug().Int64("intent_id", intent.ID).Str("operation", string(intent.Operation)).Msg("intent enqueued")
	metrics.IncEnqueued(string(intent.Operation))
	if e.events != nil {
		if err := e.events.PublishJSON(events.EventIntentEnqueued, IntentEvent(intent, 0)); err != nil {
			e.logger.Warn().Err(err).Msg("event handler failed")
		}
	}

	if e.trigger != nil {
		e.trigger.Trigger()
	}
	return intent.ID, nil
}
