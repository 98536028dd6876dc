package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// WatcherService manages who follows a ticket. Anyone may watch or unwatch
// for themselves; adding someone else takes an agent or admin and removing
// someone else takes an admin.
type WatcherService struct {
	engine   *TicketService
	watchers repository.WatcherRepository
	retries  int
}

// NewWatcherService constructs the service.
func NewWatcherService(engine *TicketService, watchers repository.WatcherRepository, conflictRetries int) *WatcherService {
	return &WatcherService{engine: engine, watchers: watchers, retries: conflictRetries}
}

// Add makes userID a watcher of the ticket. Adding an existing watcher
// returns the existing row and writes nothing.
func (s *WatcherService) Add(ctx context.Context, actor domain.Actor, ticketID, userID string) (*domain.Watcher, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = actor.UserID
	}
	if _, err := s.engine.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	if userID != actor.UserID {
		if err := s.engine.authorize(actor, auth.ActionWatchOther); err != nil {
			return nil, err
		}
	}

	var added *domain.Watcher
	err := RetryOnConflict(ctx, s.retries, func() error {
		if existing, err := s.watchers.Find(ctx, ticketID, userID); err == nil {
			added = existing
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return apperrors.MapError(err)
		}

		watcher := &domain.Watcher{ID: uuid.NewString(), TicketID: ticketID, UserID: userID}
		_, err := s.engine.transition(ctx, TransitionRequest{
			TicketID: ticketID,
			Name:     domain.TransitionWatcherAdded,
			Actor:    actor,
			Payload:  lifecycle.Payload{WatcherUserID: userID},
		}, func(m *repository.TicketMutation) {
			watcher.AddedAt = m.Entry.CreatedAt
			m.Entry.Metadata["watcher_id"] = watcher.ID
			m.AddWatcher = watcher
		})
		if err != nil {
			return err
		}
		added = watcher
		return nil
	})
	if errors.Is(err, repository.ErrWatcherExists) {
		// Lost a race with another add for the same user.
		return s.find(ctx, ticketID, userID)
	}
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Remove deletes a watcher entry by id.
func (s *WatcherService) Remove(ctx context.Context, actor domain.Actor, ticketID, watcherID string) error {
	if _, err := s.engine.Get(ctx, ticketID); err != nil {
		return err
	}
	watcher, err := s.watchers.GetByID(ctx, ticketID, watcherID)
	if err != nil {
		return watcherError(err, ticketID, watcherID)
	}
	if watcher.UserID != actor.UserID {
		if err := s.engine.authorize(actor, auth.ActionUnwatchOther); err != nil {
			return err
		}
	}

	return RetryOnConflict(ctx, s.retries, func() error {
		_, err := s.engine.transition(ctx, TransitionRequest{
			TicketID: ticketID,
			Name:     domain.TransitionWatcherRemoved,
			Actor:    actor,
			Payload:  lifecycle.Payload{WatcherID: watcher.ID, WatcherUserID: watcher.UserID},
		}, func(m *repository.TicketMutation) {
			m.RemoveWatcherID = watcher.ID
		})
		if errors.Is(err, repository.ErrNotFound) {
			// The ticket was just loaded, so the row is what vanished.
			return watcherError(repository.ErrNotFound, ticketID, watcherID)
		}
		return err
	})
}

// List returns the ticket's watchers in the order they were added.
func (s *WatcherService) List(ctx context.Context, ticketID string) ([]domain.Watcher, error) {
	if _, err := s.engine.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	watchers, err := s.watchers.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if watchers == nil {
		watchers = []domain.Watcher{}
	}
	return watchers, nil
}

func (s *WatcherService) find(ctx context.Context, ticketID, userID string) (*domain.Watcher, error) {
	watcher, err := s.watchers.Find(ctx, ticketID, userID)
	if err != nil {
		return nil, watcherError(err, ticketID, userID)
	}
	return watcher, nil
}

func watcherError(err error, ticketID, ref string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("watcher", map[string]any{"ticket_id": ticketID, "watcher": ref})
	}
	return apperrors.MapError(err)
}
