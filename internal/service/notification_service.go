package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// NotificationService resolves which watchers a transition concerns and
// records the hand-off. Delivery itself belongs to whoever consumes the
// published events.
type NotificationService struct {
	watchers repository.WatcherRepository
	logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(watchers repository.WatcherRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		watchers: watchers,
		logger:   logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketTransitioned, n.handleTicketTransitioned)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketTransitioned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketTransitionedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	recipients, err := n.Recipients(ctx, event.TicketID, event.Actor.UserID)
	if err != nil {
		return fmt.Errorf("list watchers of %s: %w", event.TicketID, err)
	}
	n.logger.Info("TicketTransitioned",
		zap.String("ticket_id", event.TicketID),
		zap.String("issue_key", payload.IssueKey),
		zap.String("transition", string(payload.Transition)),
		zap.String("new_status", string(payload.NewStatus)),
		zap.Strings("watchers", recipients))
	return nil
}

// Recipients lists the watchers of a ticket other than the actor who caused
// the change.
func (n *NotificationService) Recipients(ctx context.Context, ticketID, actorID string) ([]string, error) {
	watchers, err := n.watchers.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(watchers))
	for _, w := range watchers {
		if w.UserID == actorID || w.UserID == domain.SystemActor.UserID {
			continue
		}
		out = append(out, w.UserID)
	}
	return out, nil
}
