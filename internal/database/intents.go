package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"moviesite/internal/models"
)

// ErrNotRequeueable is returned when requeueing an intent that is not failed.
var ErrNotRequeueable = errors.New("only failed intents can be requeued")

const intentColumns = `id, operation, payload, status, retry_count, max_retries, last_error,
	created_at, updated_at, next_attempt_at, processed_at`

// CreateIntent persists a pending intent and fills in its id and timestamps.
func (db *DB) CreateIntent(ctx context.Context, intent *models.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	payload, err := models.EncodePayload(intent.Payload)
	if err != nil {
		return err
	}

	ts := now()
	intent.Status = models.IntentPending
	intent.RetryCount = 0
	intent.CreatedAt = ts
	intent.UpdatedAt = ts

	res, err := db.ExecContext(ctx, `
		INSERT INTO mutation_queue (operation, payload, status, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)`,
		intent.Operation, payload, intent.Status, intent.MaxRetries, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read intent id: %w", err)
	}
	intent.ID = id
	return nil
}

// PendingIntents returns up to limit pending intents that are due, oldest first.
func (db *DB) PendingIntents(ctx context.Context, limit int) ([]*models.Intent, error) {
	return db.queryIntents(ctx, `
		SELECT `+intentColumns+` FROM mutation_queue
		WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		models.IntentPending, now(), limit,
	)
}

// ClaimIntent moves a pending intent to processing. False means another worker got there first.
func (db *DB) ClaimIntent(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE mutation_queue SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.IntentProcessing, now(), id, models.IntentPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim intent: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveIntentOutcome writes the result of one attempt for a claimed intent.
// The row must still be processing; otherwise ErrStaleIntent is returned.
func (db *DB) SaveIntentOutcome(ctx context.Context, intent *models.Intent) error {
	if !models.IntentProcessing.CanTransitionTo(intent.Status) {
		return fmt.Errorf("invalid intent transition processing -> %s", intent.Status)
	}

	intent.UpdatedAt = now()
	res, err := db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET status = ?, retry_count = ?, last_error = ?, next_attempt_at = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		intent.Status, intent.RetryCount, intent.LastError, intent.NextAttemptAt, intent.ProcessedAt, intent.UpdatedAt,
		intent.ID, models.IntentProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to save intent outcome: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleIntent
	}
	return nil
}

func (db *DB) GetIntent(ctx context.Context, id int64) (*models.Intent, error) {
	intent, err := db.scanIntent(db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM mutation_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return intent, nil
}

// FailedIntents returns quarantined intents, most recently failed first.
func (db *DB) FailedIntents(ctx context.Context, limit int) ([]*models.Intent, error) {
	return db.queryIntents(ctx, `
		SELECT `+intentColumns+` FROM mutation_queue
		WHERE status = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?`,
		models.IntentFailed, limit,
	)
}

// ListIntents returns intents in queue order; an empty status means all.
func (db *DB) ListIntents(ctx context.Context, status models.IntentStatus, limit int) ([]*models.Intent, error) {
	if status == "" {
		return db.queryIntents(ctx,
			`SELECT `+intentColumns+` FROM mutation_queue ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	}
	return db.queryIntents(ctx,
		`SELECT `+intentColumns+` FROM mutation_queue WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		status, limit)
}

// RequeueIntent gives a failed intent a fresh retry budget.
func (db *DB) RequeueIntent(ctx context.Context, id int64) (*models.Intent, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET status = ?, retry_count = 0, next_attempt_at = NULL, processed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.IntentPending, now(), id, models.IntentFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue intent: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}

	intent, err := db.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotRequeueable
	}
	return intent, nil
}

// RequeueStaleIntents returns intents stuck in processing since before cutoff to pending.
// Such rows are left behind when the process dies between claim and outcome.
func (db *DB) RequeueStaleIntents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE mutation_queue SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		models.IntentPending, now(), models.IntentProcessing, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale intents: %w", err)
	}
	return rowsAffected(res)
}

// CountIntentsByStatus reports the queue depth per status.
func (db *DB) CountIntentsByStatus(ctx context.Context) (map[models.IntentStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM mutation_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count intents: %w", err)
	}
	defer rows.Close()

	counts := map[models.IntentStatus]int{
		models.IntentPending:    0,
		models.IntentProcessing: 0,
		models.IntentCompleted:  0,
		models.IntentFailed:     0,
	}
	for rows.Next() {
		var (
			status models.IntentStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan intent count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (db *DB) queryIntents(ctx context.Context, query string, args ...interface{}) ([]*models.Intent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}
	defer rows.Close()

	var intents []*models.Intent
	for rows.Next() {
		intent, err := db.scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intents: %w", err)
	}
	return intents, nil
}

// scanIntent leaves Payload nil when the stored body no longer decodes.
func (db *DB) scanIntent(row rowScanner) (*models.Intent, error) {
	var (
		intent models.Intent
		raw    string
	)
	err := row.Scan(
		&intent.ID, &intent.Operation, &raw, &intent.Status, &intent.RetryCount, &intent.MaxRetries,
		&intent.LastError, &intent.CreatedAt, &intent.UpdatedAt, &intent.NextAttemptAt, &intent.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	payload, err := models.DecodePayload(intent.Operation, raw)
	if err != nil {
		db.logger.Warn().Err(err).Int64("intent_id", intent.ID).Msg("stored intent payload does not decode")
	} else {
		intent.Payload = payload
	}
	return &intent, nil
}
