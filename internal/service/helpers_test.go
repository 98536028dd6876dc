package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
)

var (
	baseTime = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	customer = domain.Actor{UserID: "cust-1", Name: "Casey", Role: domain.RoleCustomer}
	agent    = domain.Actor{UserID: "agent-1", Name: "Avery", Role: domain.RoleAgent}
	admin    = domain.Actor{UserID: "admin-1", Name: "Ari", Role: domain.RoleAdmin}
)

type harness struct {
	store      *memory.Store
	clock      *clock.Fixed
	engine     *TicketService
	changelog  *ChangelogService
	watchers   *WatcherService
	sweep      *AutoCloseService
	metrics    *observability.Metrics
	dispatcher events.Dispatcher

	mu        sync.Mutex
	published []events.Event
}

// newHarness wires the services over the in-memory store. wrap, when given,
// decorates the ticket repository the engine and sweep see.
func newHarness(t *testing.T, wrap func(repository.TicketRepository) repository.TicketRepository) *harness {
	t.Helper()
	h := &harness{
		store:      memory.New(),
		clock:      clock.NewFixed(baseTime),
		metrics:    observability.NewMetrics(),
		dispatcher: events.NewInMemoryDispatcher(),
	}
	events.Forward(h.dispatcher, func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e)
		return nil
	})

	tickets := h.store.Tickets()
	if wrap != nil {
		tickets = wrap(tickets)
	}
	h.engine = NewTicketService(TicketDependencies{
		TicketRepo: tickets,
		Clock:      h.clock,
		Dispatcher: h.dispatcher,
		Metrics:    h.metrics,
		InitialStatus: InitialStatusPolicy{
			Default:        domain.TicketStatusOpen,
			InternalReview: map[string]struct{}{"tenant-review": {}},
		},
	})
	h.changelog = NewChangelogService(tickets, h.store.Changelog(), h.clock, 2)
	h.watchers = NewWatcherService(h.engine, h.store.Watchers(), 3)
	h.sweep = NewAutoCloseService(h.engine, tickets, AutoCloseConfig{
		InactivityWindow: DefaultInactivityWindow,
		BatchSize:        2,
		Concurrency:      3,
		ConflictRetries:  3,
	})
	return h
}

// seed stores a ticket in the given status as if it had been there since updatedAt.
func (h *harness) seed(t *testing.T, key string, status domain.TicketStatus, updatedAt time.Time) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		IssueKey:       key,
		TenantID:       "tenant-1",
		TenantKey:      "ACME",
		ReporterID:     customer.UserID,
		Title:          "cannot log in",
		Type:           domain.TicketTypeSupport,
		ClientPriority: 2,
		ClientSeverity: 3,
		Status:         status,
		Labels:         domain.NewLabelSet(),
		CreatedAt:      updatedAt.Add(-time.Hour),
		UpdatedAt:      updatedAt,
	}
	if status == domain.TicketStatusClosed {
		closed := updatedAt
		ticket.ClosedAt = &closed
	}
	if status == domain.TicketStatusResolved {
		res := domain.ResolutionFixed
		ticket.Resolution = &res
	}
	h.store.Put(ticket)
	return ticket
}

func (h *harness) entries(t *testing.T, ticketID string) []domain.ChangelogEntry {
	t.Helper()
	list, err := h.changelog.List(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("list changelog: %v", err)
	}
	return list
}

func (h *harness) reload(t *testing.T, ticketID string) *domain.Ticket {
	t.Helper()
	ticket, err := h.engine.Get(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return ticket
}

func assertClosedAtInvariant(t *testing.T, ticket *domain.Ticket) {
	t.Helper()
	if (ticket.Status == domain.TicketStatusClosed) != (ticket.ClosedAt != nil) {
		t.Fatalf("closedAt invariant broken: status=%s closedAt=%v", ticket.Status, ticket.ClosedAt)
	}
}

func (h *harness) eventsOf(eventType events.EventType) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, e := range h.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
