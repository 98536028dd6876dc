package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTicket(tenant string) *domain.Ticket {
	return &domain.Ticket{
		TenantID:       tenant,
		TenantKey:      "ACME",
		ReporterID:     "u1",
		Title:          "printer on fire",
		Type:           domain.TicketTypeSupport,
		ClientPriority: 2,
		ClientSeverity: 2,
		Status:         domain.TicketStatusOpen,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func createEntry() *domain.ChangelogEntry {
	return &domain.ChangelogEntry{ChangeType: domain.ChangeTypeCreate, UserID: "u1", CreatedAt: base}
}

func TestCreateAssignsSequentialIssueKeysPerTenant(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, second, other := newTicket("t1"), newTicket("t1"), newTicket("t2")
	for _, ticket := range []*domain.Ticket{first, second, other} {
		if err := store.Tickets().Create(ctx, ticket, createEntry()); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if first.IssueKey != "ACME-1" || second.IssueKey != "ACME-2" || other.IssueKey != "ACME-1" {
		t.Fatalf("unexpected keys %s %s %s", first.IssueKey, second.IssueKey, other.IssueKey)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}
	got, err := store.Tickets().GetByIssueKey(ctx, "ACME-2")
	if err != nil || got.ID != second.ID {
		t.Fatalf("lookup by key: %v %+v", err, got)
	}
	entries, err := store.Changelog().ListByTicket(ctx, first.ID, nil, 10)
	if err != nil || len(entries) != 1 || entries[0].TicketID != first.ID {
		t.Fatalf("expected creation entry, got %v %+v", err, entries)
	}
}

func TestApplyRejectsStaleVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	ticket := newTicket("t1")
	if err := store.Tickets().Create(ctx, ticket, createEntry()); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := ticket.Clone()
	next.Status = domain.TicketStatusInProgress
	entry := &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeStartWork, CreatedAt: base}
	if err := store.Tickets().Apply(ctx, repository.TicketMutation{Ticket: next, ExpectedVersion: 1, Entry: entry}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Version != 2 {
		t.Fatalf("expected version 2, got %d", next.Version)
	}

	stale := ticket.Clone()
	stale.Status = domain.TicketStatusResolved
	err := store.Tickets().Apply(ctx, repository.TicketMutation{
		Ticket:          stale,
		ExpectedVersion: 1,
		Entry:           &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeResolve, CreatedAt: base},
	})
	if !errors.Is(err, repository.ErrStaleVersion) {
		t.Fatalf("expected stale version, got %v", err)
	}

	stored, _ := store.Tickets().GetByID(ctx, ticket.ID)
	if stored.Status != domain.TicketStatusInProgress {
		t.Fatalf("stale write leaked: %s", stored.Status)
	}
	entries, _ := store.Changelog().ListByTicket(ctx, ticket.ID, nil, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after rejected write, got %d", len(entries))
	}
}

func TestApplyWatcherChangesAreAllOrNothing(t *testing.T) {
	store := New()
	ctx := context.Background()
	ticket := newTicket("t1")
	_ = store.Tickets().Create(ctx, ticket, createEntry())

	add := &domain.Watcher{TicketID: ticket.ID, UserID: "u2", AddedAt: base}
	err := store.Tickets().Apply(ctx, repository.TicketMutation{
		Ticket:          ticket.Clone(),
		ExpectedVersion: 1,
		Entry:           &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeWatcherAdded, CreatedAt: base},
		AddWatcher:      add,
	})
	if err != nil {
		t.Fatalf("add watcher: %v", err)
	}
	if add.ID == "" {
		t.Fatalf("expected watcher id to be assigned")
	}

	err = store.Tickets().Apply(ctx, repository.TicketMutation{
		Ticket:          ticket.Clone(),
		ExpectedVersion: 2,
		Entry:           &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeWatcherAdded, CreatedAt: base},
		AddWatcher:      &domain.Watcher{TicketID: ticket.ID, UserID: "u2", AddedAt: base},
	})
	if !errors.Is(err, repository.ErrWatcherExists) {
		t.Fatalf("expected ErrWatcherExists, got %v", err)
	}
	stored, _ := store.Tickets().GetByID(ctx, ticket.ID)
	if stored.Version != 2 {
		t.Fatalf("rejected mutation bumped version to %d", stored.Version)
	}

	err = store.Tickets().Apply(ctx, repository.TicketMutation{
		Ticket:          ticket.Clone(),
		ExpectedVersion: 2,
		Entry:           &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeWatcherRemoved, CreatedAt: base},
		RemoveWatcherID: "missing",
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	watchers, _ := store.Watchers().ListByTicket(ctx, ticket.ID)
	if len(watchers) != 1 || watchers[0].UserID != "u2" {
		t.Fatalf("unexpected watchers %+v", watchers)
	}
}

func TestChangelogCursorOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()
	ticket := newTicket("t1")
	_ = store.Tickets().Create(ctx, ticket, createEntry())

	// Same timestamp for two entries; seq breaks the tie.
	for i := 0; i < 2; i++ {
		entry := &domain.ChangelogEntry{TicketID: ticket.ID, ChangeType: domain.ChangeTypeCommentAdded, CreatedAt: base.Add(time.Minute)}
		if err := store.Changelog().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := store.Changelog().ListByTicket(ctx, ticket.ID, nil, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("first page: %v %d", err, len(page))
	}
	last := page[len(page)-1]
	rest, err := store.Changelog().ListByTicket(ctx, ticket.ID, &repository.ChangelogCursor{CreatedAt: last.CreatedAt, Seq: last.Seq}, 2)
	if err != nil || len(rest) != 1 {
		t.Fatalf("second page: %v %d", err, len(rest))
	}
	if rest[0].Seq <= last.Seq {
		t.Fatalf("cursor did not advance: %d after %d", rest[0].Seq, last.Seq)
	}

	if err := store.Changelog().Append(ctx, &domain.ChangelogEntry{TicketID: "nope"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for unknown ticket, got %v", err)
	}
}

func TestListInactiveFiltersAndPages(t *testing.T) {
	store := New()
	ctx := context.Background()

	stale := newTicket("t1")
	stale.Status = domain.TicketStatusResolved
	fresh := newTicket("t1")
	fresh.Status = domain.TicketStatusResolved
	fresh.UpdatedAt = base.Add(10 * 24 * time.Hour)
	open := newTicket("t1")
	waiting := newTicket("t1")
	waiting.Status = domain.TicketStatusWaitingForCustomer
	for _, ticket := range []*domain.Ticket{stale, fresh, open, waiting} {
		store.Put(ticket)
	}

	filter := repository.InactiveFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusWaitingForCustomer},
		UpdatedBefore: base.Add(time.Hour),
		Limit:         1,
	}
	var seen []string
	for {
		page, err := store.Tickets().ListInactive(ctx, filter)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen = append(seen, page[0].ID)
		filter.AfterID = page[len(page)-1].ID
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(seen))
	}
	for _, id := range seen {
		if id != stale.ID && id != waiting.ID {
			t.Fatalf("unexpected candidate %s", id)
		}
	}
}

func TestCanceledContextWritesNothing(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ticket := newTicket("t1")
	if err := store.Tickets().Create(ctx, ticket, createEntry()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if _, err := store.Tickets().GetByIssueKey(context.Background(), "ACME-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}
