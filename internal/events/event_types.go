package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket.created"
	EventTicketTransitioned EventType = "ticket.transitioned"
	EventSweepCompleted     EventType = "sweep.completed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// ActorFrom copies the fields events carry.
func ActorFrom(a domain.Actor) Actor {
	return Actor{UserID: a.UserID, Role: a.Role}
}

// Event represents a domain event emitted after a commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	IssueKey string              `json:"issue_key"`
	TenantID string              `json:"tenant_id"`
	Status   domain.TicketStatus `json:"status"`
	Title    string              `json:"title"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	IssueKey   string              `json:"issue_key"`
	Transition domain.Transition   `json:"transition"`
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	Version    int64               `json:"version"`
	EntryID    string              `json:"changelog_entry_id"`
}

// SweepCompletedPayload payload.
type SweepCompletedPayload struct {
	ClosedCount  int      `json:"closed_count"`
	ClosedKeys   []string `json:"closed_ticket_keys"`
	FailureCount int      `json:"failure_count"`
}
