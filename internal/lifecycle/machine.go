package lifecycle

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// Change describes the audit entry a transition produces.
type Change struct {
	OldValue *string
	NewValue *string
	Metadata map[string]any
	// Noop marks a request that leaves the ticket as it was (re-adding a
	// present label). Nothing is persisted for it.
	Noop bool
}

type rule struct {
	// from lists the statuses the transition may start in; empty means any.
	from        []domain.TicketStatus
	nonTerminal bool
	// to is the resulting status; empty keeps the current one.
	to       domain.TicketStatus
	validate func(p Payload) error
	guard    func(t *domain.Ticket) error
	apply    func(t *domain.Ticket, p Payload, at time.Time) Change
	// internal transitions carry a row change owned by another registry and
	// are never applied on their own.
	internal bool
}

var rules = map[domain.Transition]rule{
	domain.TransitionPushToSystech: {
		from:  []domain.TicketStatus{domain.TicketStatusPendingInternalReview},
		to:    domain.TicketStatusInProgress,
		guard: requireNotPushed,
		apply: func(t *domain.Ticket, _ Payload, at time.Time) Change {
			pushed := at
			t.PushedToSystechAt = &pushed
			return Change{Metadata: map[string]any{"pushed_to_systech_at": at.UTC().Format(time.RFC3339Nano)}}
		},
	},
	domain.TransitionEscalate: {
		nonTerminal: true,
		validate:    requireField("reason", func(p Payload) string { return p.Reason }),
		apply: func(t *domain.Ticket, p Payload, _ time.Time) Change {
			old := clone(t.EscalationReason)
			reason := p.Reason
			t.EscalationReason = &reason
			t.EscalationNote = nil
			meta := map[string]any{"reason": p.Reason}
			if p.Note != "" {
				note := p.Note
				t.EscalationNote = &note
				meta["note"] = p.Note
			}
			if old != nil {
				meta["re_escalation"] = true
			}
			return Change{OldValue: old, NewValue: ptr(reason), Metadata: meta}
		},
	},
	domain.TransitionAssignInternal: {
		nonTerminal: true,
		validate:    requireField("assignee_id", func(p Payload) string { return p.AssigneeID }),
		apply: func(t *domain.Ticket, p Payload, _ time.Time) Change {
			old := clone(t.InternalAssignedTo)
			assignee := p.AssigneeID
			t.InternalAssignedTo = &assignee
			return Change{OldValue: old, NewValue: ptr(assignee)}
		},
	},
	domain.TransitionResolveInternally: {
		from: []domain.TicketStatus{domain.TicketStatusPendingInternalReview},
		to:   domain.TicketStatusResolved,
		apply: func(t *domain.Ticket, _ Payload, _ time.Time) Change {
			return setResolution(t, domain.ResolutionResolvedInternally)
		},
	},
	domain.TransitionResolve: {
		from:     []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusWaitingForCustomer},
		to:       domain.TicketStatusResolved,
		validate: validateResolution,
		apply: func(t *domain.Ticket, p Payload, _ time.Time) Change {
			return setResolution(t, p.Resolution)
		},
	},
	domain.TransitionReopen: {
		from: []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed},
		to:   domain.TicketStatusOpen,
		apply: func(t *domain.Ticket, _ Payload, _ time.Time) Change {
			t.ClosedAt = nil
			return Change{}
		},
	},
	domain.TransitionAutoClose: {
		from: []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusWaitingForCustomer},
		to:   domain.TicketStatusClosed,
		apply: func(t *domain.Ticket, _ Payload, at time.Time) Change {
			closed := at
			t.ClosedAt = &closed
			if t.Labels == nil {
				t.Labels = domain.NewLabelSet()
			}
			added := t.Labels.Add(domain.LabelAutoClosedNoResponse)
			return Change{Metadata: map[string]any{
				"label":       domain.LabelAutoClosedNoResponse,
				"label_added": added,
			}}
		},
	},
	domain.TransitionStartWork: {
		from: []domain.TicketStatus{domain.TicketStatusOpen},
		to:   domain.TicketStatusInProgress,
	},
	domain.TransitionAwaitCustomer: {
		from: []domain.TicketStatus{domain.TicketStatusInProgress},
		to:   domain.TicketStatusWaitingForCustomer,
	},
	domain.TransitionResume: {
		from: []domain.TicketStatus{domain.TicketStatusWaitingForCustomer},
		to:   domain.TicketStatusInProgress,
	},
	domain.TransitionClose: {
		from: []domain.TicketStatus{domain.TicketStatusResolved},
		to:   domain.TicketStatusClosed,
		apply: func(t *domain.Ticket, _ Payload, at time.Time) Change {
			closed := at
			t.ClosedAt = &closed
			return Change{}
		},
	},
	domain.TransitionLabelAdded: {
		validate: requireField("label", func(p Payload) string { return p.Label }),
		apply: func(t *domain.Ticket, p Payload, _ time.Time) Change {
			if t.Labels == nil {
				t.Labels = domain.NewLabelSet()
			}
			if !t.Labels.Add(p.Label) {
				return Change{Noop: true}
			}
			return Change{NewValue: ptr(p.Label)}
		},
	},
	domain.TransitionLabelRemoved: {
		validate: requireField("label", func(p Payload) string { return p.Label }),
		apply: func(t *domain.Ticket, p Payload, _ time.Time) Change {
			if !t.Labels.Remove(p.Label) {
				return Change{Noop: true}
			}
			return Change{OldValue: ptr(p.Label)}
		},
	},
	domain.TransitionCommentAdded: {
		validate: requireField("comment_id", func(p Payload) string { return p.CommentID }),
		apply: func(_ *domain.Ticket, p Payload, _ time.Time) Change {
			return Change{NewValue: ptr(p.CommentID), Metadata: map[string]any{"comment_id": p.CommentID}}
		},
	},
	domain.TransitionAttachmentAdded: {
		validate: requireField("file_name", func(p Payload) string { return p.FileName }),
		apply: func(_ *domain.Ticket, p Payload, _ time.Time) Change {
			meta := map[string]any{"file_name": p.FileName}
			if p.AttachmentID != "" {
				meta["attachment_id"] = p.AttachmentID
			}
			return Change{NewValue: ptr(p.FileName), Metadata: meta}
		},
	},
	domain.TransitionWatcherAdded: {
		internal: true,
		validate: requireField("watcher_user_id", func(p Payload) string { return p.WatcherUserID }),
		apply: func(_ *domain.Ticket, p Payload, _ time.Time) Change {
			return Change{NewValue: ptr(p.WatcherUserID), Metadata: map[string]any{"watcher_user_id": p.WatcherUserID}}
		},
	},
	domain.TransitionWatcherRemoved: {
		internal: true,
		validate: requireField("watcher_id", func(p Payload) string { return p.WatcherID }),
		apply: func(_ *domain.Ticket, p Payload, _ time.Time) Change {
			meta := map[string]any{"watcher_id": p.WatcherID}
			var old *string
			if p.WatcherUserID != "" {
				old = ptr(p.WatcherUserID)
				meta["watcher_user_id"] = p.WatcherUserID
			}
			return Change{OldValue: old, Metadata: meta}
		},
	},
}

// Known reports whether name is a transition that can be applied to an existing ticket.
func Known(name domain.Transition) bool {
	_, ok := rules[name]
	return ok
}

// Internal reports whether name may only be applied together with the row
// change it records (watcher rows).
func Internal(name domain.Transition) bool {
	return rules[name].internal
}

// Transitions lists every transition applicable to existing tickets, sorted by name.
func Transitions() []domain.Transition {
	out := make([]domain.Transition, 0, len(rules))
	for name := range rules {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChangesStatus reports whether name moves a ticket to another status.
func ChangesStatus(name domain.Transition) bool {
	return rules[name].to != ""
}

// Available lists the transitions whose state preconditions hold for t.
// Role checks are not applied.
func Available(t *domain.Ticket) []domain.Transition {
	var out []domain.Transition
	for _, name := range Transitions() {
		r := rules[name]
		if checkState(t, name, r) != nil {
			continue
		}
		if r.guard != nil && r.guard(t) != nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Check validates that name is legal for t's current status and that p is
// well formed. It never mutates t.
func Check(t *domain.Ticket, name domain.Transition, p Payload) error {
	r, ok := rules[name]
	if !ok {
		return apperrors.NewValidationError("unknown transition", map[string]any{"transition": name})
	}
	if err := checkState(t, name, r); err != nil {
		return err
	}
	if r.guard != nil {
		if err := r.guard(t); err != nil {
			return err
		}
	}
	if r.validate != nil {
		if err := r.validate(p.Normalize()); err != nil {
			return err
		}
	}
	return nil
}

// Apply computes the state t moves to under name, as a pure function of t, p
// and at. The input ticket is never modified.
func Apply(t *domain.Ticket, name domain.Transition, p Payload, at time.Time) (*domain.Ticket, Change, error) {
	if err := Check(t, name, p); err != nil {
		return nil, Change{}, err
	}
	r := rules[name]
	p = p.Normalize()
	next := t.Clone()

	var change Change
	if r.apply != nil {
		change = r.apply(next, p, at)
	}
	if change.Noop {
		return t.Clone(), change, nil
	}
	if r.to != "" {
		from := string(t.Status)
		to := string(r.to)
		next.Status = r.to
		if change.OldValue == nil && change.NewValue == nil {
			change.OldValue = &from
			change.NewValue = &to
		} else {
			if change.Metadata == nil {
				change.Metadata = map[string]any{}
			}
			change.Metadata["from_status"] = from
			change.Metadata["to_status"] = to
		}
	}
	if next.Status != domain.TicketStatusClosed {
		next.ClosedAt = nil
	}
	next.UpdatedAt = at
	return next, change, nil
}

var tenantKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// NewTicket validates a submission and builds the ticket in its initial status.
// Identity, issue key and version are assigned by the store.
func NewTicket(spec NewTicketSpec, initial domain.TicketStatus, at time.Time) (*domain.Ticket, Change, error) {
	if !initial.IsInitial() {
		return nil, Change{}, apperrors.NewValidationError("invalid initial status", map[string]any{"status": initial})
	}
	details := map[string]any{}
	if strings.TrimSpace(spec.TenantID) == "" {
		details["tenant_id"] = "required"
	}
	if !tenantKeyPattern.MatchString(strings.TrimSpace(spec.TenantKey)) {
		details["tenant_key"] = "must be 2-10 uppercase letters or digits starting with a letter"
	}
	if strings.TrimSpace(spec.ReporterID) == "" {
		details["reporter_id"] = "required"
	}
	if strings.TrimSpace(spec.Title) == "" {
		details["title"] = "required"
	}
	ticketType := spec.Type
	if ticketType == "" {
		ticketType = domain.TicketTypeSupport
	}
	if !ticketType.Valid() {
		details["type"] = "must be support or feature_request"
	}
	if !validLevel(spec.ClientPriority) {
		details["client_priority"] = fmt.Sprintf("must be between %d and %d", domain.MinClientLevel, domain.MaxClientLevel)
	}
	if !validLevel(spec.ClientSeverity) {
		details["client_severity"] = fmt.Sprintf("must be between %d and %d", domain.MinClientLevel, domain.MaxClientLevel)
	}
	if len(details) > 0 {
		return nil, Change{}, apperrors.NewValidationError("invalid ticket submission", details)
	}

	ticket := &domain.Ticket{
		TenantID:       strings.TrimSpace(spec.TenantID),
		TenantKey:      strings.TrimSpace(spec.TenantKey),
		ReporterID:     strings.TrimSpace(spec.ReporterID),
		Title:          strings.TrimSpace(spec.Title),
		Description:    strings.TrimSpace(spec.Description),
		Type:           ticketType,
		ClientPriority: spec.ClientPriority,
		ClientSeverity: spec.ClientSeverity,
		Status:         initial,
		Labels:         domain.NewLabelSet(spec.Labels...),
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	status := string(initial)
	change := Change{
		NewValue: &status,
		Metadata: map[string]any{
			"type":            string(ticketType),
			"client_priority": spec.ClientPriority,
			"client_severity": spec.ClientSeverity,
		},
	}
	return ticket, change, nil
}

func checkState(t *domain.Ticket, name domain.Transition, r rule) error {
	if r.nonTerminal && t.Status.Terminal() {
		return apperrors.NewInvalidTransition(
			fmt.Sprintf("%s is not allowed on a %s ticket", name, t.Status),
			map[string]any{"transition": name, "status": t.Status},
		)
	}
	if len(r.from) == 0 {
		return nil
	}
	for _, candidate := range r.from {
		if candidate == t.Status {
			return nil
		}
	}
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("%s is not allowed from %s", name, t.Status),
		map[string]any{"transition": name, "status": t.Status, "allowed_from": r.from},
	)
}

func requireNotPushed(t *domain.Ticket) error {
	if t.PushedToSystechAt != nil {
		return apperrors.NewInvalidTransition("ticket was already pushed to systech",
			map[string]any{"pushed_to_systech_at": t.PushedToSystechAt.UTC().Format(time.RFC3339Nano)})
	}
	return nil
}

func requireField(field string, get func(Payload) string) func(Payload) error {
	return func(p Payload) error {
		if get(p) == "" {
			return apperrors.NewValidationError(field+" required", map[string]any{field: "required"})
		}
		return nil
	}
}

func validateResolution(p Payload) error {
	if p.Resolution == "" {
		return apperrors.NewValidationError("resolution required", map[string]any{"resolution": "required"})
	}
	if !p.Resolution.Valid() || p.Resolution == domain.ResolutionResolvedInternally {
		return apperrors.NewValidationError("unknown resolution", map[string]any{"resolution": p.Resolution})
	}
	return nil
}

func setResolution(t *domain.Ticket, resolution domain.Resolution) Change {
	t.Resolution = &resolution
	return Change{Metadata: map[string]any{"resolution": string(resolution)}}
}

func validLevel(v int) bool {
	return v >= domain.MinClientLevel && v <= domain.MaxClientLevel
}

func ptr(s string) *string {
	return &s
}

func clone(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
