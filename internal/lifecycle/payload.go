package lifecycle

import (
	"strings"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// Payload carries the transition-specific input. Only the fields a given
// transition reads are validated; the rest are ignored.
type Payload struct {
	Reason        string            `json:"reason,omitempty"`
	Note          string            `json:"note,omitempty"`
	AssigneeID    string            `json:"assignee_id,omitempty"`
	Resolution    domain.Resolution `json:"resolution,omitempty"`
	Label         string            `json:"label,omitempty"`
	CommentID     string            `json:"comment_id,omitempty"`
	AttachmentID  string            `json:"attachment_id,omitempty"`
	FileName      string            `json:"file_name,omitempty"`
	WatcherUserID string            `json:"watcher_user_id,omitempty"`
	WatcherID     string            `json:"watcher_id,omitempty"`
}

// Normalize trims free-text fields.
func (p Payload) Normalize() Payload {
	p.Reason = strings.TrimSpace(p.Reason)
	p.Note = strings.TrimSpace(p.Note)
	p.AssigneeID = strings.TrimSpace(p.AssigneeID)
	p.Resolution = domain.Resolution(strings.TrimSpace(string(p.Resolution)))
	p.Label = strings.TrimSpace(p.Label)
	p.CommentID = strings.TrimSpace(p.CommentID)
	p.AttachmentID = strings.TrimSpace(p.AttachmentID)
	p.FileName = strings.TrimSpace(p.FileName)
	p.WatcherUserID = strings.TrimSpace(p.WatcherUserID)
	p.WatcherID = strings.TrimSpace(p.WatcherID)
	return p
}

// NewTicketSpec is the client-facing submission that creates a ticket.
type NewTicketSpec struct {
	TenantID       string
	TenantKey      string
	ReporterID     string
	Title          string
	Description    string
	Type           domain.TicketType
	ClientPriority int
	ClientSeverity int
	Labels         []string
}
