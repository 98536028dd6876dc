package lifecycle

import (
	"testing"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func ticketIn(status domain.TicketStatus) *domain.Ticket {
	t := &domain.Ticket{
		ID:        "t-1",
		IssueKey:  "ACME-1",
		Status:    status,
		Labels:    domain.NewLabelSet(),
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	if status == domain.TicketStatusClosed {
		closed := baseTime
		t.ClosedAt = &closed
	}
	return t
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		name    domain.Transition
		from    domain.TicketStatus
		payload Payload
		want    domain.TicketStatus
	}{
		{domain.TransitionPushToSystech, domain.TicketStatusPendingInternalReview, Payload{}, domain.TicketStatusInProgress},
		{domain.TransitionResolveInternally, domain.TicketStatusPendingInternalReview, Payload{}, domain.TicketStatusResolved},
		{domain.TransitionResolve, domain.TicketStatusInProgress, Payload{Resolution: domain.ResolutionFixed}, domain.TicketStatusResolved},
		{domain.TransitionResolve, domain.TicketStatusWaitingForCustomer, Payload{Resolution: domain.ResolutionAnswered}, domain.TicketStatusResolved},
		{domain.TransitionReopen, domain.TicketStatusResolved, Payload{}, domain.TicketStatusOpen},
		{domain.TransitionReopen, domain.TicketStatusClosed, Payload{}, domain.TicketStatusOpen},
		{domain.TransitionAutoClose, domain.TicketStatusResolved, Payload{}, domain.TicketStatusClosed},
		{domain.TransitionAutoClose, domain.TicketStatusWaitingForCustomer, Payload{}, domain.TicketStatusClosed},
		{domain.TransitionStartWork, domain.TicketStatusOpen, Payload{}, domain.TicketStatusInProgress},
		{domain.TransitionAwaitCustomer, domain.TicketStatusInProgress, Payload{}, domain.TicketStatusWaitingForCustomer},
		{domain.TransitionResume, domain.TicketStatusWaitingForCustomer, Payload{}, domain.TicketStatusInProgress},
		{domain.TransitionClose, domain.TicketStatusResolved, Payload{}, domain.TicketStatusClosed},
	}
	at := baseTime.Add(time.Hour)
	for _, tc := range cases {
		t.Run(string(tc.name)+"_from_"+string(tc.from), func(t *testing.T) {
			original := ticketIn(tc.from)
			next, change, err := Apply(original, tc.name, tc.payload, at)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if next.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, next.Status)
			}
			if original.Status != tc.from {
				t.Fatalf("input ticket mutated: %s", original.Status)
			}
			if (next.Status == domain.TicketStatusClosed) != (next.ClosedAt != nil) {
				t.Fatalf("closedAt invariant broken: status=%s closedAt=%v", next.Status, next.ClosedAt)
			}
			if !next.UpdatedAt.Equal(at) {
				t.Fatalf("updatedAt not bumped: %v", next.UpdatedAt)
			}
			if change.OldValue == nil || *change.OldValue != string(tc.from) || change.NewValue == nil || *change.NewValue != string(tc.want) {
				t.Fatalf("unexpected change values %+v", change)
			}
		})
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	cases := []struct {
		name domain.Transition
		from domain.TicketStatus
	}{
		{domain.TransitionPushToSystech, domain.TicketStatusOpen},
		{domain.TransitionResolveInternally, domain.TicketStatusInProgress},
		{domain.TransitionResolve, domain.TicketStatusOpen},
		{domain.TransitionReopen, domain.TicketStatusInProgress},
		{domain.TransitionAutoClose, domain.TicketStatusInProgress},
		{domain.TransitionAutoClose, domain.TicketStatusClosed},
		{domain.TransitionEscalate, domain.TicketStatusClosed},
		{domain.TransitionAssignInternal, domain.TicketStatusClosed},
		{domain.TransitionClose, domain.TicketStatusWaitingForCustomer},
	}
	payload := Payload{Reason: "r", AssigneeID: "u", Resolution: domain.ResolutionFixed}
	for _, tc := range cases {
		_, _, err := Apply(ticketIn(tc.from), tc.name, payload, baseTime)
		if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
			t.Fatalf("%s from %s: expected invalid transition, got %v", tc.name, tc.from, err)
		}
	}
}

func TestPushToSystechIsOnceOnly(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusPendingInternalReview)
	pushed := baseTime
	ticket.PushedToSystechAt = &pushed
	_, _, err := Apply(ticket, domain.TransitionPushToSystech, Payload{}, baseTime.Add(time.Minute))
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestEscalateOverwritesAndRequiresReason(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusInProgress)
	if _, _, err := Apply(ticket, domain.TransitionEscalate, Payload{Reason: "  "}, baseTime); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	first, change, err := Apply(ticket, domain.TransitionEscalate, Payload{Reason: "outage", Note: "many users"}, baseTime)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if change.OldValue != nil || *change.NewValue != "outage" {
		t.Fatalf("unexpected first change %+v", change)
	}
	second, change, err := Apply(first, domain.TransitionEscalate, Payload{Reason: "vip"}, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	if *second.EscalationReason != "vip" || second.EscalationNote != nil {
		t.Fatalf("re-escalation did not overwrite: reason=%v note=%v", *second.EscalationReason, second.EscalationNote)
	}
	if second.Status != domain.TicketStatusInProgress {
		t.Fatalf("escalate changed status to %s", second.Status)
	}
	if *change.OldValue != "outage" || change.Metadata["re_escalation"] != true {
		t.Fatalf("unexpected re-escalation change %+v", change)
	}
}

func TestResolveRequiresKnownResolution(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusInProgress)
	for _, res := range []domain.Resolution{"", "because", domain.ResolutionResolvedInternally} {
		if _, _, err := Apply(ticket, domain.TransitionResolve, Payload{Resolution: res}, baseTime); !apperrors.IsCode(err, apperrors.CodeValidation) {
			t.Fatalf("resolution %q: expected validation error, got %v", res, err)
		}
	}
	next, _, err := Apply(ticket, domain.TransitionResolve, Payload{Resolution: domain.ResolutionWorkaround}, baseTime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if next.Resolution == nil || *next.Resolution != domain.ResolutionWorkaround {
		t.Fatalf("resolution not recorded: %v", next.Resolution)
	}
}

func TestAutoCloseLabelIsNotDuplicated(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusResolved)
	ticket.Labels.Add(domain.LabelAutoClosedNoResponse)
	next, change, err := Apply(ticket, domain.TransitionAutoClose, Payload{}, baseTime)
	if err != nil {
		t.Fatalf("auto close: %v", err)
	}
	if next.Labels.Len() != 1 {
		t.Fatalf("expected a single label, got %v", next.Labels.Slice())
	}
	if change.Metadata["label_added"] != false {
		t.Fatalf("expected label_added=false, got %v", change.Metadata)
	}
	if next.ClosedAt == nil || !next.ClosedAt.Equal(baseTime) {
		t.Fatalf("closedAt not set to transition time: %v", next.ClosedAt)
	}
}

func TestReopenClearsClosedAtAndKeepsResolution(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusClosed)
	res := domain.ResolutionFixed
	ticket.Resolution = &res
	next, _, err := Apply(ticket, domain.TransitionReopen, Payload{}, baseTime)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if next.ClosedAt != nil {
		t.Fatalf("closedAt should be cleared")
	}
	if next.Resolution == nil {
		t.Fatalf("resolution history should be kept")
	}
}

func TestStatusNeutralTransitions(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusClosed)
	cases := []struct {
		name    domain.Transition
		payload Payload
	}{
		{domain.TransitionCommentAdded, Payload{CommentID: "c-1"}},
		{domain.TransitionAttachmentAdded, Payload{FileName: "log.txt"}},
		{domain.TransitionWatcherAdded, Payload{WatcherUserID: "u-2"}},
		{domain.TransitionWatcherRemoved, Payload{WatcherID: "w-1", WatcherUserID: "u-2"}},
		{domain.TransitionLabelAdded, Payload{Label: "vip"}},
	}
	for _, tc := range cases {
		next, change, err := Apply(ticket, tc.name, tc.payload, baseTime.Add(time.Hour))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if next.Status != domain.TicketStatusClosed || next.ClosedAt == nil {
			t.Fatalf("%s changed status or closedAt", tc.name)
		}
		if change.Noop {
			t.Fatalf("%s unexpectedly a no-op", tc.name)
		}
	}
	if _, _, err := Apply(ticket, domain.TransitionCommentAdded, Payload{}, baseTime); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected missing comment id to fail validation, got %v", err)
	}
}

func TestLabelNoop(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusOpen)
	ticket.Labels.Add("vip")
	next, change, err := Apply(ticket, domain.TransitionLabelAdded, Payload{Label: "vip"}, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if !change.Noop {
		t.Fatalf("expected no-op")
	}
	if !next.UpdatedAt.Equal(baseTime) {
		t.Fatalf("no-op must not bump updatedAt")
	}
	if _, change, _ = Apply(ticket, domain.TransitionLabelRemoved, Payload{Label: "missing"}, baseTime); !change.Noop {
		t.Fatalf("removing an absent label should be a no-op")
	}
}

func TestUnknownTransition(t *testing.T) {
	if _, _, err := Apply(ticketIn(domain.TicketStatusOpen), "teleport", Payload{}, baseTime); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if Known(domain.TransitionCreate) {
		t.Fatalf("create is not applied to existing tickets")
	}
}

func TestAvailable(t *testing.T) {
	got := map[domain.Transition]bool{}
	for _, name := range Available(ticketIn(domain.TicketStatusPendingInternalReview)) {
		got[name] = true
	}
	for _, want := range []domain.Transition{domain.TransitionPushToSystech, domain.TransitionResolveInternally, domain.TransitionEscalate} {
		if !got[want] {
			t.Fatalf("expected %s to be available, got %v", want, got)
		}
	}
	if got[domain.TransitionResolve] || got[domain.TransitionAutoClose] {
		t.Fatalf("unexpected transitions available: %v", got)
	}
}

func TestNewTicket(t *testing.T) {
	spec := NewTicketSpec{
		TenantID:       "tenant-1",
		TenantKey:      "ACME",
		ReporterID:     "cust-1",
		Title:          " Printer on fire ",
		ClientPriority: 2,
		ClientSeverity: 1,
		Labels:         []string{"hw", "hw"},
	}
	ticket, change, err := NewTicket(spec, domain.TicketStatusPendingInternalReview, baseTime)
	if err != nil {
		t.Fatalf("new ticket: %v", err)
	}
	if ticket.Status != domain.TicketStatusPendingInternalReview || ticket.Type != domain.TicketTypeSupport {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.Title != "Printer on fire" || ticket.Labels.Len() != 1 {
		t.Fatalf("submission not normalized: %+v", ticket)
	}
	if change.NewValue == nil || *change.NewValue != string(domain.TicketStatusPendingInternalReview) {
		t.Fatalf("unexpected change %+v", change)
	}

	if _, _, err := NewTicket(spec, domain.TicketStatusResolved, baseTime); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected invalid initial status to fail, got %v", err)
	}
	spec.ClientPriority = 5
	spec.TenantKey = "acme"
	_, _, err = NewTicket(spec, domain.TicketStatusOpen, baseTime)
	de := apperrors.ToDomainError(err)
	if de == nil || de.Code != apperrors.CodeValidation || de.Details["client_priority"] == nil || de.Details["tenant_key"] == nil {
		t.Fatalf("expected field-level validation details, got %v", err)
	}
}

func TestInternalTransitions(t *testing.T) {
	for _, name := range Transitions() {
		want := name == domain.TransitionWatcherAdded || name == domain.TransitionWatcherRemoved
		if Internal(name) != want {
			t.Fatalf("%s: Internal = %v, want %v", name, Internal(name), want)
		}
	}
}
