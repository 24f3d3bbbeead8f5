package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moviesite/internal/database"
	"moviesite/internal/domain"
	"moviesite/internal/events"
	"moviesite/internal/metrics"
	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrTargetNotFound is the apply error for an update whose movie no longer exists.
	ErrTargetNotFound = errors.New("target movie not found")

	errUndecodablePayload = errors.New("stored payload could not be decoded")
)

// Options tunes a Processor. Zero values fall back to the package defaults.
type Options struct {
	BatchSize int
	Retry     RetryPolicy
	// QuarantineMissingTarget fails an update whose movie is gone on its first attempt
	// instead of spending the retry budget.
	QuarantineMissingTarget bool
	DeadLetters             domain.DeadLetterSink
	Events                  domain.EventPublisher
	Logger                  *zerolog.Logger
}

// Processor drains pending intents into the record store.
type Processor struct {
	queue                   domain.QueueStore
	records                 domain.RecordStore
	deadLetters             domain.DeadLetterSink
	events                  domain.EventPublisher
	retry                   RetryPolicy
	batchSize               int
	quarantineMissingTarget bool
	logger                  *zerolog.Logger
	now                     func() time.Time
}

func NewProcessor(queue domain.QueueStore, records domain.RecordStore, opts Options) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = models.DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Processor{
		queue:                   queue,
		records:                 records,
		deadLetters:             opts.DeadLetters,
		events:                  opts.Events,
		retry:                   opts.Retry,
		batchSize:               opts.BatchSize,
		quarantineMissingTarget: opts.QuarantineMissingTarget,
		logger:                  logger,
		now:                     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessQueue runs one pass over up to BatchSize due intents, oldest first.
// Only a failure to fetch the batch is returned; every per-intent failure is
// recorded on the intent itself. A cancelled ctx ends the pass early without error.
func (p *Processor) ProcessQueue(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ObservePass(time.Since(start)) }()

	intents, err := p.queue.PendingIntents(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending intents: %w", err)
	}
	if len(intents) == 0 {
		return nil
	}

	p.logger.Debug().Int("count", len(intents)).Msg("processing queue batch")

	for _, intent := range intents {
		if ctx.Err() != nil {
			// unclaimed intents stay pending for the next pass
			p.logger.Debug().Err(ctx.Err()).Msg("queue pass interrupted")
			return nil
		}
		p.processIntent(ctx, intent)
	}

	p.reportDepth(ctx)
	return nil
}

func (p *Processor) processIntent(ctx context.Context, intent *models.Intent) {
	log := p.logger.With().Int64("intent_id", intent.ID).Str("operation", string(intent.Operation)).Logger()

	claimed, err := p.queue.ClaimIntent(ctx, intent.ID)
	if err != nil {
		log.Error().Err(err).Msg("claim intent")
		return
	}
	if !claimed {
		log.Debug().Msg("intent claimed elsewhere, skipping")
		metrics.ObserveIntent(string(intent.Operation), metrics.OutcomeSkipped)
		return
	}
	intent.Status = models.IntentProcessing

	// A claimed intent always gets its outcome written, even during shutdown.
	ctx = context.WithoutCancel(ctx)

	movieID, applyErr := p.apply(ctx, intent)
	if applyErr == nil {
		p.complete(ctx, intent, movieID, &log)
		return
	}
	p.retryOrFail(ctx, intent, applyErr, &log)
}

// apply executes the intent against the record store. For inserts it returns the new movie id.
func (p *Processor) apply(ctx context.Context, intent *models.Intent) (int64, error) {
	switch payload := intent.Payload.(type) {
	case nil:
		return 0, errUndecodablePayload
	case models.InsertPayload:
		movie, err := p.records.CreateMovie(ctx, payload.Movie)
		if err != nil {
			return 0, err
		}
		return movie.ID, nil
	case models.UpdatePayload:
		err := p.records.UpdateMovieByID(ctx, payload.TargetID, payload.Changes)
		if errors.Is(err, database.ErrNotFound) {
			return 0, fmt.Errorf("%w: id %d", ErrTargetNotFound, payload.TargetID)
		}
		return payload.TargetID, err
	case models.DeletePayload:
		deleted, err := p.records.DeleteMovieByID(ctx, payload.TargetID)
		if err != nil {
			return 0, err
		}
		if !deleted {
			p.logger.Debug().Int64("intent_id", intent.ID).Int64("target_id", payload.TargetID).
				Msg("delete target already absent")
		}
		return payload.TargetID, nil
	default:
		return 0, fmt.Errorf("unsupported payload type %T", payload)
	}
}

func (p *Processor) complete(ctx context.Context, intent *models.Intent, movieID int64, log *zerolog.Logger) {
	done := p.now()
	intent.Status = models.IntentCompleted
	intent.NextAttemptAt = nil
	intent.ProcessedAt = &done

	if err := p.queue.SaveIntentOutcome(ctx, intent); err != nil {
		log.Error().Err(err).Msg("mark intent completed")
		return
	}

	log.Info().Int64("movie_id", movieID).Msg("intent applied")
	metrics.ObserveIntent(string(intent.Operation), metrics.OutcomeCompleted)
	p.publish(events.EventIntentCompleted, intent, movieID, log)
}

func (p *Processor) retryOrFail(ctx context.Context, intent *models.Intent, cause error, log *zerolog.Logger) {
	msg := cause.Error()
	intent.LastError = &msg
	intent.RetryCount++

	if p.quarantineMissingTarget && errors.Is(cause, ErrTargetNotFound) {
		// the target will not come back; spend the remaining budget now
		intent.RetryCount = max(intent.RetryCount, intent.MaxRetries)
	}

	if intent.RetryCount >= intent.MaxRetries {
		done := p.now()
		intent.Status = models.IntentFailed
		intent.NextAttemptAt = nil
		intent.ProcessedAt = &done

		if err := p.queue.SaveIntentOutcome(ctx, intent); err != nil {
			log.Error().Err(err).Msg("mark intent failed")
			return
		}

		log.Warn().Err(cause).Int("retry_count", intent.RetryCount).Msg("intent failed permanently")
		metrics.ObserveIntent(string(intent.Operation), metrics.OutcomeFailed)
		p.pushDeadLetter(ctx, intent, log)
		p.publish(events.EventIntentFailed, intent, 0, log)
		return
	}

	intent.Status = models.IntentPending
	intent.NextAttemptAt = nil
	if delay := p.retry.NextDelay(intent.RetryCount); delay > 0 {
		next := p.now().Add(delay)
		intent.NextAttemptAt = &next
	}

	if err := p.queue.SaveIntentOutcome(ctx, intent); err != nil {
		log.Error().Err(err).Msg("mark intent for retry")
		return
	}

	log.Warn().Err(cause).Int("retry_count", intent.RetryCount).Int("max_retries", intent.MaxRetries).
		Msg("intent apply failed, will retry")
	metrics.ObserveIntent(string(intent.Operation), metrics.OutcomeRetried)
	p.publish(events.EventIntentRetried, intent, 0, log)
}

func (p *Processor) pushDeadLetter(ctx context.Context, intent *models.Intent, log *zerolog.Logger) {
	if p.deadLetters == nil {
		return
	}
	if err := p.deadLetters.PushDeadLetter(ctx, intent); err != nil {
		log.Warn().Err(err).Msg("dead-letter push failed")
	}
}

func (p *Processor) publish(eventType string, intent *models.Intent, movieID int64, log *zerolog.Logger) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishJSON(eventType, IntentEvent(intent, movieID)); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}

func (p *Processor) reportDepth(ctx context.Context) {
	counts, err := p.queue.CountIntentsByStatus(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("count intents")
		return
	}
	for status, n := range counts {
		metrics.SetQueueDepth(string(status), n)
	}
}

// IntentEvent builds the event payload describing intent.
func IntentEvent(intent *models.Intent, movieID int64) events.IntentEventPayload {
	ev := events.IntentEventPayload{
		IntentID:   intent.ID,
		Operation:  string(intent.Operation),
		Status:     string(intent.Status),
		MovieID:    movieID,
		RetryCount: intent.RetryCount,
		MaxRetries: intent.MaxRetries,
		LastError:  intent.ErrorMessage(),
		At:         intent.UpdatedAt,
	}
	switch payload := intent.Payload.(type) {
	case models.UpdatePayload:
		ev.TargetID = payload.TargetID
	case models.DeletePayload:
		ev.TargetID = payload.TargetID
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
