package service

import (
	"context"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

const defaultChangelogPageSize = 100

// ChangelogService reads a ticket's audit trail and appends standalone entries.
type ChangelogService struct {
	tickets   repository.TicketRepository
	changelog repository.ChangelogRepository
	clock     clock.Clock
	pageSize  int
}

// NewChangelogService constructs the service. pageSize <= 0 uses the default.
func NewChangelogService(tickets repository.TicketRepository, changelog repository.ChangelogRepository, clk clock.Clock, pageSize int) *ChangelogService {
	if pageSize <= 0 {
		pageSize = defaultChangelogPageSize
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &ChangelogService{tickets: tickets, changelog: changelog, clock: clk, pageSize: pageSize}
}

// Entries yields the ticket's entries oldest first, fetching a page at a time.
// The sequence can be ranged over again to read from the start. A missing
// ticket yields a single NOT_FOUND error.
func (s *ChangelogService) Entries(ctx context.Context, ticketID string) iter.Seq2[domain.ChangelogEntry, error] {
	return func(yield func(domain.ChangelogEntry, error) bool) {
		if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
			yield(domain.ChangelogEntry{}, mapRepoError(err, ticketID))
			return
		}
		var cursor *repository.ChangelogCursor
		for {
			page, err := s.changelog.ListByTicket(ctx, ticketID, cursor, s.pageSize)
			if err != nil {
				yield(domain.ChangelogEntry{}, apperrors.MapError(err))
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repository.ChangelogCursor{CreatedAt: last.CreatedAt, Seq: last.Seq}
		}
	}
}

// List collects every entry for the ticket.
func (s *ChangelogService) List(ctx context.Context, ticketID string) ([]domain.ChangelogEntry, error) {
	out := []domain.ChangelogEntry{}
	for entry, err := range s.Entries(ctx, ticketID) {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Append writes an entry that is not tied to a ticket state change, such as
// an import from another system. Transitions write their own entries.
func (s *ChangelogService) Append(ctx context.Context, entry *domain.ChangelogEntry) error {
	details := map[string]any{}
	if strings.TrimSpace(string(entry.ChangeType)) == "" {
		details["change_type"] = "required"
	}
	if strings.TrimSpace(entry.UserID) == "" {
		details["user_id"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid changelog entry", details)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	ticket, err := s.tickets.GetByID(ctx, entry.TicketID)
	if err != nil {
		return mapRepoError(err, entry.TicketID)
	}
	if entry.CreatedAt.Before(ticket.UpdatedAt) {
		entry.CreatedAt = ticket.UpdatedAt
	}
	if err := s.changelog.Append(ctx, entry); err != nil {
		return mapRepoError(err, entry.TicketID)
	}
	return nil
}
