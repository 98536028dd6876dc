package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen                  TicketStatus = "open"
	TicketStatusPendingInternalReview TicketStatus = "pending_internal_review"
	TicketStatusInProgress            TicketStatus = "in_progress"
	TicketStatusWaitingForCustomer    TicketStatus = "waiting_for_customer"
	TicketStatusResolved              TicketStatus = "resolved"
	TicketStatusClosed                TicketStatus = "closed"
)

var ticketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusPendingInternalReview,
	TicketStatusInProgress,
	TicketStatusWaitingForCustomer,
	TicketStatusResolved,
	TicketStatusClosed,
}

// TicketStatuses returns every defined status.
func TicketStatuses() []TicketStatus {
	return append([]TicketStatus(nil), ticketStatuses...)
}

// Valid reports whether s is one of the defined states.
func (s TicketStatus) Valid() bool {
	for _, candidate := range ticketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further workflow changes
// other than reopen and status-neutral activity.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// IsInitial reports whether s may be used as a ticket's creation status.
func (s TicketStatus) IsInitial() bool {
	return s == TicketStatusOpen || s == TicketStatusPendingInternalReview
}

// TicketType classifies the kind of request.
type TicketType string

const (
	TicketTypeSupport        TicketType = "support"
	TicketTypeFeatureRequest TicketType = "feature_request"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	return t == TicketTypeSupport || t == TicketTypeFeatureRequest
}

// Resolution is the reason code recorded when a ticket enters resolved.
type Resolution string

const (
	ResolutionFixed              Resolution = "fixed"
	ResolutionWorkaround         Resolution = "workaround_provided"
	ResolutionDuplicate          Resolution = "duplicate"
	ResolutionCannotReproduce    Resolution = "cannot_reproduce"
	ResolutionWontFix            Resolution = "wont_fix"
	ResolutionAnswered           Resolution = "answered"
	ResolutionResolvedInternally Resolution = "resolved_internally"
)

// Valid reports whether r is a known resolution code.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionFixed, ResolutionWorkaround, ResolutionDuplicate, ResolutionCannotReproduce,
		ResolutionWontFix, ResolutionAnswered, ResolutionResolvedInternally:
		return true
	}
	return false
}

// LabelAutoClosedNoResponse marks tickets closed by the inactivity sweep.
const LabelAutoClosedNoResponse = "auto_closed_no_response"

// Priority and severity bounds reported by the client.
const (
	MinClientLevel = 1
	MaxClientLevel = 4
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	IssueKey           string
	TenantID           string
	TenantKey          string
	ReporterID         string
	Title              string
	Description        string
	Type               TicketType
	ClientPriority     int
	ClientSeverity     int
	Status             TicketStatus
	Resolution         *Resolution
	EscalationReason   *string
	EscalationNote     *string
	InternalAssignedTo *string
	PushedToSystechAt  *time.Time
	Labels             LabelSet
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
	// Version increments on every committed transition and guards conditional writes.
	Version int64
}

// Clone returns a deep copy so state transitions never alias the original.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.Resolution = clonePtr(t.Resolution)
	out.EscalationReason = clonePtr(t.EscalationReason)
	out.EscalationNote = clonePtr(t.EscalationNote)
	out.InternalAssignedTo = clonePtr(t.InternalAssignedTo)
	out.PushedToSystechAt = clonePtr(t.PushedToSystechAt)
	out.ClosedAt = clonePtr(t.ClosedAt)
	out.Labels = t.Labels.Clone()
	return &out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
