package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidIntent is returned when an intent's payload does not match its operation
// or fails field validation. Such intents never reach the queue.
var ErrInvalidIntent = errors.New("invalid mutation intent")

// Operation is the kind of change a mutation intent carries.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// IntentStatus is the processing state of a mutation intent.
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentCompleted  IntentStatus = "completed"
	IntentFailed     IntentStatus = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s IntentStatus) Terminal() bool {
	return s == IntentCompleted || s == IntentFailed
}

// CanTransitionTo reports whether s -> next is an edge of the intent state machine.
//
//	pending    -> processing
//	processing -> completed | pending | failed
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	switch s {
	case IntentPending:
		return next == IntentProcessing
	case IntentProcessing:
		return next == IntentCompleted || next == IntentPending || next == IntentFailed
	default:
		return false
	}
}

// Payload is the operation-specific body of an intent. The set of implementations
// is closed: InsertPayload, UpdatePayload, DeletePayload.
type Payload interface {
	Operation() Operation
	Validate() error
	isPayload()
}

// InsertPayload creates a movie from the full field set.
type InsertPayload struct {
	Movie MovieFields `json:"movie"`
}

func (InsertPayload) Operation() Operation { return OpInsert }
func (InsertPayload) isPayload()           {}

func (p InsertPayload) Validate() error {
	return p.Movie.Validate()
}

// UpdatePayload applies a partial change set to an existing movie.
type UpdatePayload struct {
	TargetID int64        `json:"target_id"`
	Changes  MovieChanges `json:"changes"`
}

func (UpdatePayload) Operation() Operation { return OpUpdate }
func (UpdatePayload) isPayload()           {}

func (p UpdatePayload) Validate() error {
	if p.TargetID <= 0 {
		return errors.New("target_id is required")
	}
	if p.Changes.IsEmpty() {
		return errors.New("changes must set at least one field")
	}
	return p.Changes.Validate()
}

// DeletePayload removes a movie. Deleting an absent movie is not an error.
type DeletePayload struct {
	TargetID int64 `json:"target_id"`
}

func (DeletePayload) Operation() Operation { return OpDelete }
func (DeletePayload) isPayload()           {}

func (p DeletePayload) Validate() error {
	if p.TargetID <= 0 {
		return errors.New("target_id is required")
	}
	return nil
}

// Intent is a durably queued description of one movie mutation.
type Intent struct {
	ID            int64        `json:"id"`
	Operation     Operation    `json:"operation"`
	Payload       Payload      `json:"payload"`
	Status        IntentStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     *string      `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
}

// NewIntent builds a pending intent for p after validating it.
func NewIntent(p Payload, maxRetries int) (*Intent, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidIntent)
	}
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	intent := &Intent{
		Operation:  p.Operation(),
		Payload:    p,
		Status:     IntentPending,
		MaxRetries: maxRetries,
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return intent, nil
}

// Validate checks the operation/payload pairing and the payload fields.
func (i *Intent) Validate() error {
	if !i.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidIntent, i.Operation)
	}
	if i.Payload == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidIntent)
	}
	if i.Payload.Operation() != i.Operation {
		return fmt.Errorf("%w: %s payload for %s operation", ErrInvalidIntent, i.Payload.Operation(), i.Operation)
	}
	if i.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidIntent)
	}
	if err := i.Payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return nil
}

// UnmarshalJSON restores the payload variant named by the operation field.
// A null or missing payload leaves Payload nil.
func (i *Intent) UnmarshalJSON(data []byte) error {
	type intentAlias Intent
	aux := struct {
		*intentAlias
		Payload json.RawMessage `json:"payload"`
	}{intentAlias: (*intentAlias)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	i.Payload = nil
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return nil
	}
	payload, err := DecodePayload(i.Operation, string(aux.Payload))
	if err != nil {
		return err
	}
	i.Payload = payload
	return nil
}

// ErrorMessage returns LastError or an empty string.
func (i *Intent) ErrorMessage() string {
	if i.LastError == nil {
		return ""
	}
	return *i.LastError
}

// EncodePayload serializes p for storage next to its operation column.
func EncodePayload(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", p.Operation(), err)
	}
	return string(raw), nil
}

// DecodePayload restores the payload variant for op and validates it.
func DecodePayload(op Operation, raw string) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch op {
	case OpInsert:
		var v InsertPayload
		err = json.Unmarshal([]byte(raw), &v)
		p = v
	case OpUpdate:
		var v UpdatePayload
		err = json.Unmarshal([]byte(raw), &v)
		p = v
	case OpDelete:
		var v DeletePayload
		err = json.Unmarshal([]byte(raw), &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidIntent, op)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrInvalidIntent, op, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return p, nil
}
