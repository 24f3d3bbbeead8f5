package events

import (
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventIntentCompleted, handler)

	payload := IntentEventPayload{IntentID: 7, Operation: "insert", Status: "completed", MovieID: 3}
	err := bus.PublishJSON(EventIntentCompleted, payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != EventIntentCompleted {
		t.Errorf("expected type %s, got %s", EventIntentCompleted, received.Type)
	}

	var decoded IntentEventPayload
	if err := received.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded.IntentID != 7 || decoded.MovieID != 3 {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	if err := bus.Publish(&Event{Type: "event"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	errFirst := errors.New("first")
	var secondCalled bool

	bus.Subscribe(EventIntentFailed, func(_ *Event) error { return errFirst })
	bus.Subscribe(EventIntentFailed, func(_ *Event) error { secondCalled = true; return nil })

	err := bus.PublishJSON(EventIntentFailed, IntentEventPayload{IntentID: 1})
	if !errors.Is(err, errFirst) {
		t.Errorf("expected handler error to surface, got %v", err)
	}
	if !secondCalled {
		t.Error("expected later handlers to run after a failure")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus PublishJSON failed: %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent("type", IntentEventPayload{IntentID: 123})
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}

	if event.Type != "type" {
		t.Errorf("expected type, got %s", event.Type)
	}

	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded IntentEventPayload
	if err := event.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.IntentID != 123 {
		t.Errorf("expected IntentID 123, got %d", decoded.IntentID)
	}
}
