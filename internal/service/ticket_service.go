package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// InitialStatusPolicy picks the status a new ticket starts in. Tenants listed
// in InternalReview start in pending_internal_review; everyone else gets Default.
type InitialStatusPolicy struct {
	Default        domain.TicketStatus
	InternalReview map[string]struct{}
}

// For returns the initial status for tenantID.
func (p InitialStatusPolicy) For(tenantID string) domain.TicketStatus {
	if _, ok := p.InternalReview[tenantID]; ok {
		return domain.TicketStatusPendingInternalReview
	}
	if p.Default == "" {
		return domain.TicketStatusOpen
	}
	return p.Default
}

// TicketService is the transition engine: every change to a ticket goes
// through it.
type TicketService struct {
	tickets       repository.TicketRepository
	authz         auth.Authorizer
	clock         clock.Clock
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	initialStatus InitialStatusPolicy
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	Authorizer    auth.Authorizer
	Clock         clock.Clock
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	InitialStatus InitialStatusPolicy
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:       deps.TicketRepo,
		authz:         deps.Authorizer,
		clock:         deps.Clock,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		initialStatus: deps.InitialStatus,
	}
	if s.authz == nil {
		s.authz = auth.MustDefaultAuthorizer()
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// TransitionRequest asks the engine to apply one named transition.
type TransitionRequest struct {
	TicketID string
	Name     domain.Transition
	Actor    domain.Actor
	Payload  lifecycle.Payload
	// At overrides the clock; zero means now.
	At time.Time
	// Require is checked against the loaded ticket after the state check.
	// The commit is conditional on the version it saw.
	Require func(t *domain.Ticket) error
}

// Create validates a submission and stores the ticket in its initial status
// together with its creation entry.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, spec lifecycle.NewTicketSpec) (*domain.Ticket, error) {
	ctx, span := observability.Tracer().Start(ctx, "ticket.create",
		trace.WithAttributes(attribute.String("tenant_id", spec.TenantID)))
	defer span.End()

	if spec.ReporterID == "" {
		spec.ReporterID = actor.UserID
	}
	now := s.clock.Now()
	ticket, change, err := lifecycle.NewTicket(spec, s.initialStatus.For(spec.TenantID), now)
	if err != nil {
		return nil, s.fail(span, domain.TransitionCreate, err)
	}
	if err := s.authorize(actor, string(domain.TransitionCreate)); err != nil {
		return nil, s.fail(span, domain.TransitionCreate, err)
	}
	if actor.Role == domain.RoleCustomer && ticket.ReporterID != actor.UserID {
		return nil, s.fail(span, domain.TransitionCreate,
			apperrors.NewForbidden("customers can only report tickets as themselves", nil))
	}

	ticket.ID = uuid.NewString()
	entry := newEntry(ticket.ID, domain.TransitionCreate, actor, change, now)
	if err := s.tickets.Create(ctx, ticket, entry); err != nil {
		return nil, s.fail(span, domain.TransitionCreate, mapRepoError(err, ticket.ID))
	}

	s.metrics.RecordTransition(string(domain.TransitionCreate), "ok")
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("issue_key", ticket.IssueKey),
		zap.String("status", string(ticket.Status)),
		zap.String("actor_id", actor.UserID),
	)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			IssueKey: ticket.IssueKey,
			TenantID: ticket.TenantID,
			Status:   ticket.Status,
			Title:    ticket.Title,
		},
	})
	return ticket, nil
}

// Get loads a ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, ticketID)
	}
	return ticket, nil
}

// GetByIssueKey loads a ticket by its tenant-scoped key.
func (s *TicketService) GetByIssueKey(ctx context.Context, key string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByIssueKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"issue_key": key})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Transition loads the ticket, checks the transition against its status and
// payload, then against the actor's role, computes the new state and commits
// it with one changelog entry. Nothing is written when any step fails.
// Watcher transitions are refused here; they go through WatcherService so the
// entry and the watcher row commit together.
func (s *TicketService) Transition(ctx context.Context, req TransitionRequest) (*domain.Ticket, error) {
	if lifecycle.Internal(req.Name) {
		s.metrics.RecordTransition(string(req.Name), apperrors.CodeValidation)
		return nil, apperrors.NewValidationError("transition is applied through the watcher registry",
			map[string]any{"transition": req.Name})
	}
	return s.transition(ctx, req, nil)
}

// Available lists the transitions the actor could apply to the ticket right now.
func (s *TicketService) Available(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.Transition, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	var out []domain.Transition
	for _, name := range lifecycle.Available(ticket) {
		if lifecycle.Internal(name) {
			continue
		}
		if ok, err := s.authz.Allowed(actor.Role, string(name)); err == nil && ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (s *TicketService) transition(ctx context.Context, req TransitionRequest, attach func(*repository.TicketMutation)) (*domain.Ticket, error) {
	ctx, span := observability.Tracer().Start(ctx, "ticket.transition", trace.WithAttributes(
		attribute.String("ticket_id", req.TicketID),
		attribute.String("transition", string(req.Name)),
		attribute.String("actor_role", string(req.Actor.Role)),
	))
	defer span.End()

	if req.Name == domain.TransitionCreate {
		return nil, s.fail(span, req.Name, apperrors.NewValidationError("create is not a transition on an existing ticket", nil))
	}
	if !lifecycle.Known(req.Name) {
		return nil, s.fail(span, req.Name, apperrors.NewValidationError("unknown transition", map[string]any{"transition": req.Name}))
	}

	current, err := s.tickets.GetByID(ctx, req.TicketID)
	if err != nil {
		return nil, s.fail(span, req.Name, mapRepoError(err, req.TicketID))
	}
	if err := lifecycle.Check(current, req.Name, req.Payload); err != nil {
		return nil, s.fail(span, req.Name, err)
	}
	if req.Require != nil {
		if err := req.Require(current); err != nil {
			return nil, s.fail(span, req.Name, err)
		}
	}
	if err := s.authorize(req.Actor, string(req.Name)); err != nil {
		return nil, s.fail(span, req.Name, err)
	}

	at := req.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	// Keep the ticket's changelog non-decreasing even when clocks disagree.
	if at.Before(current.UpdatedAt) {
		at = current.UpdatedAt
	}
	next, change, err := lifecycle.Apply(current, req.Name, req.Payload, at)
	if err != nil {
		return nil, s.fail(span, req.Name, err)
	}
	if change.Noop {
		s.metrics.RecordTransition(string(req.Name), "noop")
		return next, nil
	}

	mutation := repository.TicketMutation{
		Ticket:          next,
		ExpectedVersion: current.Version,
		Entry:           newEntry(current.ID, req.Name, req.Actor, change, at),
	}
	if attach != nil {
		attach(&mutation)
	}
	if err := s.tickets.Apply(ctx, mutation); err != nil {
		return nil, s.fail(span, req.Name, mapRepoError(err, req.TicketID))
	}

	s.metrics.RecordTransition(string(req.Name), "ok")
	s.logger.Info("ticket transitioned",
		zap.String("ticket_id", next.ID),
		zap.String("transition", string(req.Name)),
		zap.String("actor_id", req.Actor.UserID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.Int64("version", next.Version),
	)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketTransitioned,
		TicketID: next.ID,
		Actor:    events.ActorFrom(req.Actor),
		Payload: events.TicketTransitionedPayload{
			IssueKey:   next.IssueKey,
			Transition: req.Name,
			OldStatus:  current.Status,
			NewStatus:  next.Status,
			Version:    next.Version,
			EntryID:    mutation.Entry.ID,
		},
	})
	return next, nil
}

func (s *TicketService) authorize(actor domain.Actor, action string) error {
	ok, err := s.authz.Allowed(actor.Role, action)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.NewForbidden("role may not perform this action", map[string]any{
			"role":   actor.Role,
			"action": action,
		})
	}
	return nil
}

func (s *TicketService) fail(span trace.Span, name domain.Transition, err error) error {
	domainErr := apperrors.ToDomainError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, domainErr.Code)
	s.metrics.RecordTransition(string(name), domainErr.Code)
	if domainErr.HTTPStatus >= 500 {
		s.logger.Error("transition failed", zap.String("transition", string(name)), zap.Error(err))
	}
	return err
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	// The change is already committed; a failing subscriber must not undo the response.
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func newEntry(ticketID string, name domain.Transition, actor domain.Actor, change lifecycle.Change, at time.Time) *domain.ChangelogEntry {
	return &domain.ChangelogEntry{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		ChangeType: name.ChangeType(),
		UserID:     actor.UserID,
		UserName:   actor.Name,
		OldValue:   change.OldValue,
		NewValue:   change.NewValue,
		Metadata:   change.Metadata,
		CreatedAt:  at,
	}
}

// mapRepoError turns storage sentinels into domain errors.
func mapRepoError(err error, ticketID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStaleVersion):
		return apperrors.WithCause(apperrors.NewConflict("ticket was modified concurrently",
			map[string]any{"ticket_id": ticketID}), repository.ErrStaleVersion)
	case errors.Is(err, repository.ErrWatcherExists):
		return apperrors.WithCause(apperrors.NewConflict("user already watches this ticket",
			map[string]any{"ticket_id": ticketID}), repository.ErrWatcherExists)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.WithCause(apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID}), repository.ErrNotFound)
	}
	return apperrors.MapError(err)
}
