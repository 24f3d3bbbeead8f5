package database

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moviesite/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInsertIntent(t *testing.T, title string) *models.Intent {
	t.Helper()
	intent, err := models.NewIntent(models.InsertPayload{Movie: models.MovieFields{Title: title, Rating: 5}}, 3)
	require.NoError(t, err)
	return intent
}

func TestIntentLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	// Create
	intent := newInsertIntent(t, "Heat")
	require.NoError(t, db.CreateIntent(ctx, intent))
	require.NotZero(t, intent.ID)

	// Pending
	pending, err := db.PendingIntents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpInsert, pending[0].Operation)
	assert.Equal(t, models.IntentPending, pending[0].Status)
	payload, ok := pending[0].Payload.(models.InsertPayload)
	require.True(t, ok)
	assert.Equal(t, "Heat", payload.Movie.Title)

	// Claim
	claimed, err := db.ClaimIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = db.ClaimIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "a processing intent must not be claimed twice")

	pending, err = db.PendingIntents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Outcome
	done := time.Now().UTC()
	intent.Status = models.IntentCompleted
	intent.ProcessedAt = &done
	require.NoError(t, db.SaveIntentOutcome(ctx, intent))

	got, err := db.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.LastError)

	// Terminal rows reject further outcomes
	intent.Status = models.IntentPending
	assert.ErrorIs(t, db.SaveIntentOutcome(ctx, intent), ErrStaleIntent)

	_, err = db.GetIntent(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveIntentOutcome_InvalidTransition(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	intent := newInsertIntent(t, "Ronin")
	require.NoError(t, db.CreateIntent(context.Background(), intent))

	intent.Status = models.IntentProcessing
	assert.Error(t, db.SaveIntentOutcome(context.Background(), intent))
}

func TestCreateIntent_RejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	bad := &models.Intent{Operation: models.OpUpdate, Payload: models.UpdatePayload{TargetID: 1}, MaxRetries: 3}
	assert.ErrorIs(t, db.CreateIntent(context.Background(), bad), models.ErrInvalidIntent)
}

func TestPendingIntents_OrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	var ids []int64
	for _, title := range []string{"A", "B", "C", "D"} {
		intent := newInsertIntent(t, title)
		require.NoError(t, db.CreateIntent(ctx, intent))
		ids = append(ids, intent.ID)
	}

	pending, err := db.PendingIntents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, intent := range pending {
		assert.Equal(t, ids[i], intent.ID)
	}
}

func TestPendingIntents_SkipsBackedOff(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	intent := newInsertIntent(t, "Later")
	require.NoError(t, db.CreateIntent(ctx, intent))

	claimed, err := db.ClaimIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	msg := "temporary error"
	next := time.Now().UTC().Add(time.Hour)
	intent.Status = models.IntentPending
	intent.RetryCount = 1
	intent.LastError = &msg
	intent.NextAttemptAt = &next
	require.NoError(t, db.SaveIntentOutcome(ctx, intent))

	// Should not be returned because next attempt is in the future
	pending, err := db.PendingIntents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Move the next attempt into the past
	_, err = db.ExecContext(ctx, `UPDATE mutation_queue SET next_attempt_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), intent.ID)
	require.NoError(t, err)

	pending, err = db.PendingIntents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "temporary error", pending[0].ErrorMessage())
}

func TestClaimIntent_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	intent := newInsertIntent(t, "Contested")
	require.NoError(t, db.CreateIntent(ctx, intent))

	const numGoroutines = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			ok, err := db.ClaimIntent(ctx, intent.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one claim must win")
}

func TestFailedIntentsAndRequeue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	intent := newInsertIntent(t, "Broken")
	require.NoError(t, db.CreateIntent(ctx, intent))
	_, err := db.ClaimIntent(ctx, intent.ID)
	require.NoError(t, err)

	msg := "boom"
	intent.Status = models.IntentFailed
	intent.RetryCount = 3
	intent.LastError = &msg
	require.NoError(t, db.SaveIntentOutcome(ctx, intent))

	failed, err := db.FailedIntents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].ErrorMessage())

	requeued, err := db.RequeueIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, requeued.Status)
	assert.Zero(t, requeued.RetryCount)
	assert.Equal(t, "boom", requeued.ErrorMessage(), "last error is kept for the operator")

	_, err = db.RequeueIntent(ctx, intent.ID)
	assert.ErrorIs(t, err, ErrNotRequeueable)

	_, err = db.RequeueIntent(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequeueStaleIntents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	intent := newInsertIntent(t, "Stuck")
	require.NoError(t, db.CreateIntent(ctx, intent))
	_, err := db.ClaimIntent(ctx, intent.ID)
	require.NoError(t, err)

	n, err := db.RequeueStaleIntents(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.RequeueStaleIntents(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, got.Status)
}

func TestListAndCountIntents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	for _, title := range []string{"One", "Two"} {
		require.NoError(t, db.CreateIntent(ctx, newInsertIntent(t, title)))
	}
	del, err := models.NewIntent(models.DeletePayload{TargetID: 5}, 3)
	require.NoError(t, err)
	require.NoError(t, db.CreateIntent(ctx, del))
	_, err = db.ClaimIntent(ctx, del.ID)
	require.NoError(t, err)

	all, err := db.ListIntents(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	processing, err := db.ListIntents(ctx, models.IntentProcessing, 100)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, models.OpDelete, processing[0].Operation)

	counts, err := db.CountIntentsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.IntentPending])
	assert.Equal(t, 1, counts[models.IntentProcessing])
	assert.Equal(t, 0, counts[models.IntentFailed])
}

func TestScanIntent_UndecodablePayload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ts := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO mutation_queue (operation, payload, status, retry_count, max_retries, created_at, updated_at)
		VALUES ('update', '{"target_id":0}', 'pending', 0, 3, ?, ?)`, ts, ts)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	got, err := db.GetIntent(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Payload)
	assert.Equal(t, models.OpUpdate, got.Operation)
}
