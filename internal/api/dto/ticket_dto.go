package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TenantID       string            `json:"tenant_id"`
	TenantKey      string            `json:"tenant_key"`
	ReporterID     string            `json:"reporter_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Type           domain.TicketType `json:"type"`
	ClientPriority int               `json:"client_priority"`
	ClientSeverity int               `json:"client_severity"`
	Labels         []string          `json:"labels"`
}

// Spec converts the request into the engine's submission.
func (r CreateTicketRequest) Spec() lifecycle.NewTicketSpec {
	return lifecycle.NewTicketSpec{
		TenantID:       r.TenantID,
		TenantKey:      r.TenantKey,
		ReporterID:     r.ReporterID,
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.Type,
		ClientPriority: r.ClientPriority,
		ClientSeverity: r.ClientSeverity,
		Labels:         r.Labels,
	}
}

// TransitionRequest is the body of POST /tickets/:id/transitions/:name.
// Unused fields are ignored by the transition.
type TransitionRequest = lifecycle.Payload

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID                 string              `json:"id"`
	IssueKey           string              `json:"issue_key"`
	TenantID           string              `json:"tenant_id"`
	ReporterID         string              `json:"reporter_id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Type               domain.TicketType   `json:"type"`
	ClientPriority     int                 `json:"client_priority"`
	ClientSeverity     int                 `json:"client_severity"`
	Status             domain.TicketStatus `json:"status"`
	Resolution         *domain.Resolution  `json:"resolution"`
	EscalationReason   *string             `json:"escalation_reason"`
	EscalationNote     *string             `json:"escalation_note"`
	InternalAssignedTo *string             `json:"internal_assigned_to"`
	PushedToSystechAt  *time.Time          `json:"pushed_to_systech_at"`
	Labels             []string            `json:"labels"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	ClosedAt           *time.Time          `json:"closed_at"`
	Version            int64               `json:"version"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 t.ID,
		IssueKey:           t.IssueKey,
		TenantID:           t.TenantID,
		ReporterID:         t.ReporterID,
		Title:              t.Title,
		Description:        t.Description,
		Type:               t.Type,
		ClientPriority:     t.ClientPriority,
		ClientSeverity:     t.ClientSeverity,
		Status:             t.Status,
		Resolution:         t.Resolution,
		EscalationReason:   t.EscalationReason,
		EscalationNote:     t.EscalationNote,
		InternalAssignedTo: t.InternalAssignedTo,
		PushedToSystechAt:  t.PushedToSystechAt,
		Labels:             t.Labels.Slice(),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		ClosedAt:           t.ClosedAt,
		Version:            t.Version,
	}
}

// AvailableTransitionsResponse lists what the caller may do next.
type AvailableTransitionsResponse struct {
	TicketID    string              `json:"ticket_id"`
	Status      domain.TicketStatus `json:"status"`
	Transitions []domain.Transition `json:"transitions"`
}
