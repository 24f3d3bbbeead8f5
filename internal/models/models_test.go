package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestIntentStatus_Transitions(t *testing.T) {
	assert.True(t, IntentPending.CanTransitionTo(IntentProcessing))
	assert.False(t, IntentPending.CanTransitionTo(IntentCompleted))
	assert.False(t, IntentPending.CanTransitionTo(IntentFailed))

	assert.True(t, IntentProcessing.CanTransitionTo(IntentCompleted))
	assert.True(t, IntentProcessing.CanTransitionTo(IntentPending))
	assert.True(t, IntentProcessing.CanTransitionTo(IntentFailed))

	for _, next := range []IntentStatus{IntentPending, IntentProcessing, IntentCompleted, IntentFailed} {
		assert.False(t, IntentCompleted.CanTransitionTo(next), "completed -> %s", next)
		assert.False(t, IntentFailed.CanTransitionTo(next), "failed -> %s", next)
	}

	assert.True(t, IntentCompleted.Terminal())
	assert.True(t, IntentFailed.Terminal())
	assert.False(t, IntentPending.Terminal())
}

func TestNewIntent(t *testing.T) {
	t.Run("Insert", func(t *testing.T) {
		intent, err := NewIntent(InsertPayload{Movie: MovieFields{Title: "X", Rating: 7}}, 0)
		require.NoError(t, err)
		assert.Equal(t, OpInsert, intent.Operation)
		assert.Equal(t, IntentPending, intent.Status)
		assert.Equal(t, DefaultMaxRetries, intent.MaxRetries)
		assert.Zero(t, intent.RetryCount)
	})

	t.Run("InsertWithoutTitle", func(t *testing.T) {
		_, err := NewIntent(InsertPayload{Movie: MovieFields{Rating: 7}}, 3)
		assert.True(t, errors.Is(err, ErrInvalidIntent))
	})

	t.Run("UpdateWithoutTarget", func(t *testing.T) {
		_, err := NewIntent(UpdatePayload{Changes: MovieChanges{Title: strPtr("Y")}}, 3)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})

	t.Run("UpdateWithoutChanges", func(t *testing.T) {
		_, err := NewIntent(UpdatePayload{TargetID: 1}, 3)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})

	t.Run("DeleteWithoutTarget", func(t *testing.T) {
		_, err := NewIntent(DeletePayload{}, 3)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})

	t.Run("NilPayload", func(t *testing.T) {
		_, err := NewIntent(nil, 3)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})

	t.Run("TooManySceneImages", func(t *testing.T) {
		scenes := []string{"1", "2", "3", "4", "5", "6", "7"}
		_, err := NewIntent(InsertPayload{Movie: MovieFields{Title: "X", SceneImages: scenes}}, 3)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})
}

func TestIntent_ValidateMismatchedOperation(t *testing.T) {
	intent := &Intent{Operation: OpDelete, Payload: UpdatePayload{TargetID: 1, Changes: MovieChanges{Title: strPtr("Y")}}, MaxRetries: 3}
	assert.ErrorIs(t, intent.Validate(), ErrInvalidIntent)

	intent = &Intent{Operation: "upsert", Payload: DeletePayload{TargetID: 1}, MaxRetries: 3}
	assert.ErrorIs(t, intent.Validate(), ErrInvalidIntent)
}

func TestPayloadEncoding(t *testing.T) {
	release := time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC)
	in := InsertPayload{Movie: MovieFields{Title: "Inception", Rating: 8.8, ReleaseDate: &release, Cast: []string{"Leo"}}}

	raw, err := EncodePayload(in)
	require.NoError(t, err)

	decoded, err := DecodePayload(OpInsert, raw)
	require.NoError(t, err)
	got, ok := decoded.(InsertPayload)
	require.True(t, ok)
	assert.Equal(t, "Inception", got.Movie.Title)
	assert.True(t, release.Equal(*got.Movie.ReleaseDate))

	_, err = DecodePayload(OpUpdate, `{"target_id":0}`)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = DecodePayload(OpDelete, `not json`)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = DecodePayload("noop", `{}`)
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestIntent_JSONRoundTrip(t *testing.T) {
	msg := "boom"
	in, err := NewIntent(UpdatePayload{TargetID: 7, Changes: MovieChanges{Title: strPtr("Renamed")}}, 3)
	require.NoError(t, err)
	in.ID = 42
	in.Status = IntentFailed
	in.RetryCount = 3
	in.LastError = &msg

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Intent
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, OpUpdate, out.Operation)
	assert.Equal(t, IntentFailed, out.Status)
	assert.Equal(t, 3, out.RetryCount)
	assert.Equal(t, "boom", out.ErrorMessage())

	update, ok := out.Payload.(UpdatePayload)
	require.True(t, ok, "payload %T", out.Payload)
	assert.Equal(t, int64(7), update.TargetID)
	require.NotNil(t, update.Changes.Title)
	assert.Equal(t, "Renamed", *update.Changes.Title)

	t.Run("NullPayload", func(t *testing.T) {
		var got Intent
		require.NoError(t, json.Unmarshal([]byte(`{"id":1,"operation":"delete","payload":null}`), &got))
		assert.Nil(t, got.Payload)
		assert.Equal(t, OpDelete, got.Operation)
	})

	t.Run("MismatchedPayload", func(t *testing.T) {
		var got Intent
		err := json.Unmarshal([]byte(`{"operation":"update","payload":{"target_id":0}}`), &got)
		assert.ErrorIs(t, err, ErrInvalidIntent)
	})
}

func TestMovieChanges_Apply(t *testing.T) {
	fields := MovieFields{Title: "Old", Rating: 5, Cast: []string{"a"}}
	cast := []string{"b", "c"}
	rating := 9.0
	MovieChanges{Title: strPtr("New"), Rating: &rating, Cast: &cast}.Apply(&fields)

	assert.Equal(t, "New", fields.Title)
	assert.Equal(t, 9.0, fields.Rating)
	assert.Equal(t, []string{"b", "c"}, fields.Cast)

	cast[0] = "mutated"
	assert.Equal(t, "b", fields.Cast[0])
}

func TestMovieChanges_Validate(t *testing.T) {
	bad := 11.0
	assert.Error(t, MovieChanges{Rating: &bad}.Validate())
	assert.Error(t, MovieChanges{Title: strPtr("  ")}.Validate())
	assert.NoError(t, MovieChanges{Title: strPtr("ok")}.Validate())
	assert.True(t, MovieChanges{}.IsEmpty())
}

func TestParseMovieSort(t *testing.T) {
	assert.Equal(t, SortTitle, ParseMovieSort("name"))
	assert.Equal(t, SortDuration, ParseMovieSort("duration"))
	assert.Equal(t, SortNewest, ParseMovieSort("createdAt"))
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 8, 17)
	assert.Equal(t, 3, p.Pages)

	page, limit := NormalizePage(0, 0, DefaultMoviePageSize)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultMoviePageSize, limit)

	_, limit = NormalizePage(1, 1000, DefaultMoviePageSize)
	assert.Equal(t, MaxPageSize, limit)
	assert.Equal(t, 8, Offset(2, 8))
}
