// Package memory keeps tickets, changelog entries and watchers in process.
// It honours the same atomicity and conditional-write contracts as the
// Postgres repositories and backs the tests and database-less dev runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Store is a mutex-guarded set of tables.
type Store struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	byKey     map[string]string
	counters  map[string]int64
	changelog map[string][]domain.ChangelogEntry
	watchers  map[string][]domain.Watcher
	seq       int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets:   make(map[string]*domain.Ticket),
		byKey:     make(map[string]string),
		counters:  make(map[string]int64),
		changelog: make(map[string][]domain.ChangelogEntry),
		watchers:  make(map[string][]domain.Watcher),
	}
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Changelog returns the changelog repository view.
func (s *Store) Changelog() repository.ChangelogRepository { return changelogRepo{s} }

// Watchers returns the watcher repository view.
func (s *Store) Watchers() repository.WatcherRepository { return watcherRepo{s} }

// Put stores t as-is, bypassing the lifecycle. Intended for seeding fixtures.
func (s *Store) Put(t *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := t.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
		t.ID = c.ID
	}
	if c.Version == 0 {
		c.Version = 1
		t.Version = 1
	}
	if c.Labels == nil {
		c.Labels = domain.NewLabelSet()
	}
	s.tickets[c.ID] = c
	if c.IssueKey != "" {
		s.byKey[c.IssueKey] = c.ID
	}
}

func (s *Store) appendLocked(entry *domain.ChangelogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.seq++
	entry.Seq = s.seq
	stored := *entry
	stored.Metadata = cloneMetadata(entry.Metadata)
	s.changelog[entry.TicketID] = append(s.changelog[entry.TicketID], stored)
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ChangelogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	s.counters[ticket.TenantID]++
	ticket.IssueKey = fmt.Sprintf("%s-%d", ticket.TenantKey, s.counters[ticket.TenantID])
	ticket.Version = 1
	if ticket.Labels == nil {
		ticket.Labels = domain.NewLabelSet()
	}
	s.tickets[ticket.ID] = ticket.Clone()
	s.byKey[ticket.IssueKey] = ticket.ID

	entry.TicketID = ticket.ID
	s.appendLocked(entry)
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (r ticketRepo) GetByIssueKey(ctx context.Context, key string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	id, ok := r.s.byKey[key]
	r.s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r ticketRepo) Apply(ctx context.Context, m repository.TicketMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tickets[m.Ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != m.ExpectedVersion {
		return repository.ErrStaleVersion
	}

	// Validate every part before touching state so the commit is all-or-nothing.
	watchers := s.watchers[m.Ticket.ID]
	removeAt := -1
	if m.AddWatcher != nil {
		for _, w := range watchers {
			if w.UserID == m.AddWatcher.UserID {
				return repository.ErrWatcherExists
			}
		}
	}
	if m.RemoveWatcherID != "" {
		for i, w := range watchers {
			if w.ID == m.RemoveWatcherID {
				removeAt = i
				break
			}
		}
		if removeAt < 0 {
			return repository.ErrNotFound
		}
	}

	next := m.Ticket.Clone()
	next.Version = m.ExpectedVersion + 1
	s.tickets[next.ID] = next

	if m.AddWatcher != nil {
		if m.AddWatcher.ID == "" {
			m.AddWatcher.ID = uuid.NewString()
		}
		watchers = append(watchers, *m.AddWatcher)
	}
	if removeAt >= 0 {
		watchers = append(watchers[:removeAt:removeAt], watchers[removeAt+1:]...)
	}
	s.watchers[next.ID] = watchers

	s.appendLocked(m.Entry)
	m.Ticket.Version = next.Version
	return nil
}

func (r ticketRepo) ListInactive(ctx context.Context, filter repository.InactiveFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[domain.TicketStatus]bool, len(filter.Statuses))
	for _, status := range filter.Statuses {
		wanted[status] = true
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if !wanted[t.Status] || t.UpdatedAt.After(filter.UpdatedBefore) || t.ID <= filter.AfterID {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type changelogRepo struct{ s *Store }

func (r changelogRepo) Append(ctx context.Context, entry *domain.ChangelogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[entry.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.s.appendLocked(entry)
	return nil
}

func (r changelogRepo) ListByTicket(ctx context.Context, ticketID string, after *repository.ChangelogCursor, limit int) ([]domain.ChangelogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entries := append([]domain.ChangelogEntry(nil), r.s.changelog[ticketID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
	if limit <= 0 {
		limit = 100
	}
	out := make([]domain.ChangelogEntry, 0, limit)
	for _, entry := range entries {
		if after != nil {
			if entry.CreatedAt.Before(after.CreatedAt) {
				continue
			}
			if entry.CreatedAt.Equal(after.CreatedAt) && entry.Seq <= after.Seq {
				continue
			}
		}
		entry.Metadata = cloneMetadata(entry.Metadata)
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type watcherRepo struct{ s *Store }

func (r watcherRepo) Find(ctx context.Context, ticketID, userID string) (*domain.Watcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.watchers[ticketID] {
		if w.UserID == userID {
			found := w
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r watcherRepo) GetByID(ctx context.Context, ticketID, watcherID string) (*domain.Watcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.watchers[ticketID] {
		if w.ID == watcherID {
			found := w
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r watcherRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Watcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Watcher(nil), r.s.watchers[ticketID]...), nil
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
