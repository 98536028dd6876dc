package domain

import "time"

// Transition names a role-gated operation on a ticket.
type Transition string

const (
	TransitionCreate            Transition = "create"
	TransitionPushToSystech     Transition = "push_to_systech"
	TransitionEscalate          Transition = "escalate"
	TransitionAssignInternal    Transition = "assign_internal"
	TransitionResolveInternally Transition = "resolve_internally"
	TransitionResolve           Transition = "resolve"
	TransitionReopen            Transition = "reopen"
	TransitionAutoClose         Transition = "auto_close"
	TransitionStartWork         Transition = "start_work"
	TransitionAwaitCustomer     Transition = "await_customer"
	TransitionResume            Transition = "resume"
	TransitionClose             Transition = "close"
	TransitionLabelAdded        Transition = "label_added"
	TransitionLabelRemoved      Transition = "label_removed"
	TransitionCommentAdded      Transition = "comment_added"
	TransitionAttachmentAdded   Transition = "attachment_added"
	TransitionWatcherAdded      Transition = "watcher_added"
	TransitionWatcherRemoved    Transition = "watcher_removed"
)

// ChangeType captures what happened in a changelog entry.
type ChangeType string

// Every transition writes an entry whose change type carries the transition's name.
const (
	ChangeTypeCreate            = ChangeType(TransitionCreate)
	ChangeTypePushToSystech     = ChangeType(TransitionPushToSystech)
	ChangeTypeEscalate          = ChangeType(TransitionEscalate)
	ChangeTypeAssignInternal    = ChangeType(TransitionAssignInternal)
	ChangeTypeResolveInternally = ChangeType(TransitionResolveInternally)
	ChangeTypeResolve           = ChangeType(TransitionResolve)
	ChangeTypeReopen            = ChangeType(TransitionReopen)
	ChangeTypeAutoClose         = ChangeType(TransitionAutoClose)
	ChangeTypeStartWork         = ChangeType(TransitionStartWork)
	ChangeTypeAwaitCustomer     = ChangeType(TransitionAwaitCustomer)
	ChangeTypeResume            = ChangeType(TransitionResume)
	ChangeTypeClose             = ChangeType(TransitionClose)
	ChangeTypeLabelAdded        = ChangeType(TransitionLabelAdded)
	ChangeTypeLabelRemoved      = ChangeType(TransitionLabelRemoved)
	ChangeTypeCommentAdded      = ChangeType(TransitionCommentAdded)
	ChangeTypeAttachmentAdded   = ChangeType(TransitionAttachmentAdded)
	ChangeTypeWatcherAdded      = ChangeType(TransitionWatcherAdded)
	ChangeTypeWatcherRemoved    = ChangeType(TransitionWatcherRemoved)
)

// ChangeType returns the changelog change type written by t.
func (t Transition) ChangeType() ChangeType {
	return ChangeType(t)
}

// ChangelogEntry is an immutable audit trail entry.
type ChangelogEntry struct {
	ID         string
	TicketID   string
	Seq        int64
	ChangeType ChangeType
	UserID     string
	UserName   string
	OldValue   *string
	NewValue   *string
	Metadata   map[string]any
	CreatedAt  time.Time
}
