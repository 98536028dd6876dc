package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// DefaultInactivityWindow is how long a resolved or waiting ticket may sit
// untouched before the sweep closes it.
const DefaultInactivityWindow = 5 * 24 * time.Hour

var sweepStatuses = []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusWaitingForCustomer}

// errNoLongerInactive skips a candidate that saw activity after it was listed.
var errNoLongerInactive error = apperrors.NewDomainError("NO_LONGER_INACTIVE",
	"ticket saw activity after it was selected", http.StatusConflict, nil)

// AutoCloseConfig tunes a sweep.
type AutoCloseConfig struct {
	InactivityWindow time.Duration
	BatchSize        int
	Concurrency      int
	ConflictRetries  int
}

// SweepFailure records one ticket the sweep could not close.
type SweepFailure struct {
	TicketID string `json:"ticket_id"`
	IssueKey string `json:"issue_key"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// SweepResult summarizes a run.
type SweepResult struct {
	Now              time.Time      `json:"now"`
	Cutoff           time.Time      `json:"cutoff"`
	ClosedCount      int            `json:"closed_count"`
	ClosedTicketKeys []string       `json:"closed_ticket_keys"`
	SkippedCount     int            `json:"skipped_count"`
	Failures         []SweepFailure `json:"failures"`
}

// AutoCloseService closes tickets that stayed inactive past the window.
type AutoCloseService struct {
	engine     *TicketService
	tickets    repository.TicketRepository
	cfg        AutoCloseConfig
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAutoCloseService constructs the sweep.
func NewAutoCloseService(engine *TicketService, tickets repository.TicketRepository, cfg AutoCloseConfig) *AutoCloseService {
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = DefaultInactivityWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &AutoCloseService{
		engine:     engine,
		tickets:    tickets,
		cfg:        cfg,
		dispatcher: engine.dispatcher,
		logger:     engine.logger,
		metrics:    engine.metrics,
	}
}

// Run closes every ticket in resolved or waiting_for_customer whose last
// update is at or before now minus the inactivity window. Per-ticket failures
// are collected in the result; only a listing failure or cancellation fails
// the run.
func (s *AutoCloseService) Run(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "sweep.autoclose",
		trace.WithAttributes(attribute.String("now", now.UTC().Format(time.RFC3339))))
	defer span.End()

	started := time.Now()
	cutoff := now.Add(-s.cfg.InactivityWindow)
	result := SweepResult{Now: now, Cutoff: cutoff, ClosedTicketKeys: []string{}, Failures: []SweepFailure{}}

	var (
		mu      sync.Mutex
		afterID string
	)
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, span, result, started, err)
		}
		page, err := s.tickets.ListInactive(ctx, repository.InactiveFilter{
			Statuses:      sweepStatuses,
			UpdatedBefore: cutoff,
			AfterID:       afterID,
			Limit:         s.cfg.BatchSize,
		})
		if err != nil {
			return s.finish(ctx, span, result, started, fmt.Errorf("list inactive tickets: %w", err))
		}
		if len(page) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for i := range page {
			ticket := page[i]
			g.Go(func() error {
				err := s.closeOne(ctx, ticket, now, cutoff)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					result.ClosedCount++
					result.ClosedTicketKeys = append(result.ClosedTicketKeys, ticket.IssueKey)
				case errors.Is(err, errNoLongerInactive):
					result.SkippedCount++
				default:
					domainErr := apperrors.ToDomainError(err)
					result.Failures = append(result.Failures, SweepFailure{
						TicketID: ticket.ID,
						IssueKey: ticket.IssueKey,
						Code:     domainErr.Code,
						Message:  domainErr.Message,
					})
					s.logger.Warn("auto-close failed",
						zap.String("ticket_id", ticket.ID),
						zap.String("code", domainErr.Code),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(page) < s.cfg.BatchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	return s.finish(ctx, span, result, started, nil)
}

func (s *AutoCloseService) closeOne(ctx context.Context, ticket domain.Ticket, now, cutoff time.Time) error {
	return RetryOnConflict(ctx, s.cfg.ConflictRetries, func() error {
		_, err := s.engine.Transition(ctx, TransitionRequest{
			TicketID: ticket.ID,
			Name:     domain.TransitionAutoClose,
			Actor:    domain.SystemActor,
			At:       now,
			Require: func(current *domain.Ticket) error {
				if current.UpdatedAt.After(cutoff) {
					return errNoLongerInactive
				}
				return nil
			},
		})
		return err
	})
}

func (s *AutoCloseService) finish(ctx context.Context, span trace.Span, result SweepResult, started time.Time, err error) (SweepResult, error) {
	sort.Strings(result.ClosedTicketKeys)
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].IssueKey < result.Failures[j].IssueKey })

	took := time.Since(started)
	s.metrics.RecordSweep(result.ClosedCount, len(result.Failures), took)
	span.SetAttributes(
		attribute.Int("closed_count", result.ClosedCount),
		attribute.Int("failure_count", len(result.Failures)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("auto-close sweep aborted", zap.Error(err), zap.Int("closed", result.ClosedCount))
		return result, err
	}

	s.logger.Info("auto-close sweep finished",
		zap.Time("cutoff", result.Cutoff),
		zap.Int("closed", result.ClosedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("took", took),
	)
	if s.dispatcher != nil {
		s.engine.publishEvent(context.WithoutCancel(ctx), events.Event{
			Type:  events.EventSweepCompleted,
			Actor: events.ActorFrom(domain.SystemActor),
			Payload: events.SweepCompletedPayload{
				ClosedCount:  result.ClosedCount,
				ClosedKeys:   result.ClosedTicketKeys,
				FailureCount: len(result.Failures),
			},
		})
	}
	return result, nil
}
