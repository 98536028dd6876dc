package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishRunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls int
	boom := errors.New("boom")
	d.Subscribe(EventTicketTransitioned, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventTicketTransitioned, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		t.Fatalf("created handler must not run for a transition")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketTransitioned})
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
}

func TestForwardSubscribesAllTypes(t *testing.T) {
	d := NewInMemoryDispatcher()
	seen := map[EventType]bool{}
	Forward(d, func(_ context.Context, e Event) error {
		seen[e.Type] = true
		return nil
	})
	for _, eventType := range []EventType{EventTicketCreated, EventTicketTransitioned, EventSweepCompleted} {
		_ = d.Publish(context.Background(), Event{Type: eventType})
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 forwarded types, got %v", seen)
	}
}
