package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// ChangelogEntryResponse is one audit entry.
type ChangelogEntryResponse struct {
	ID         string            `json:"id"`
	ChangeType domain.ChangeType `json:"change_type"`
	UserID     string            `json:"user_id"`
	UserName   string            `json:"user_name,omitempty"`
	OldValue   *string           `json:"old_value"`
	NewValue   *string           `json:"new_value"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewChangelogEntryResponse maps an entry.
func NewChangelogEntryResponse(e domain.ChangelogEntry) ChangelogEntryResponse {
	return ChangelogEntryResponse{
		ID:         e.ID,
		ChangeType: e.ChangeType,
		UserID:     e.UserID,
		UserName:   e.UserName,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		Metadata:   e.Metadata,
		CreatedAt:  e.CreatedAt,
	}
}

// AddWatcherRequest payload. An empty user_id watches as the caller.
type AddWatcherRequest struct {
	UserID string `json:"user_id"`
}

// WatcherResponse is one watcher.
type WatcherResponse struct {
	ID       string    `json:"id"`
	TicketID string    `json:"ticket_id"`
	UserID   string    `json:"user_id"`
	AddedAt  time.Time `json:"added_at"`
}

// NewWatcherResponse maps a watcher.
func NewWatcherResponse(w domain.Watcher) WatcherResponse {
	return WatcherResponse{ID: w.ID, TicketID: w.TicketID, UserID: w.UserID, AddedAt: w.AddedAt}
}

// RunSweepRequest lets an admin pin the sweep's notion of now.
type RunSweepRequest struct {
	Now *time.Time `json:"now"`
}

// SweepResponse reports a sweep run.
type SweepResponse = service.SweepResult

// TokenRequest asks for a development bearer token.
type TokenRequest struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
