package domain

import "time"

// Watcher is a user subscribed to visibility on a ticket.
type Watcher struct {
	ID       string
	TicketID string
	UserID   string
	AddedAt  time.Time
}
