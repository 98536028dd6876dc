package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// WatcherRepository reads the ticket/user watch association. Rows are
// inserted and deleted only through TicketRepository.Apply so each change
// commits with its changelog entry.
type WatcherRepository interface {
	Find(ctx context.Context, ticketID, userID string) (*domain.Watcher, error)
	GetByID(ctx context.Context, ticketID, watcherID string) (*domain.Watcher, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Watcher, error)
}

type watcherRepository struct {
	pool *pgxpool.Pool
}

// NewWatcherRepository builds repository.
func NewWatcherRepository(pool *pgxpool.Pool) WatcherRepository {
	return &watcherRepository{pool: pool}
}

func (r *watcherRepository) Find(ctx context.Context, ticketID, userID string) (*domain.Watcher, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, ErrNotFound
	}
	const query = `SELECT id, ticket_id, user_id, added_at FROM ticket_watchers WHERE ticket_id=$1 AND user_id=$2`
	return r.fetchSingle(ctx, query, ticketID, userID)
}

func (r *watcherRepository) GetByID(ctx context.Context, ticketID, watcherID string) (*domain.Watcher, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, ErrNotFound
	}
	if _, err := uuid.Parse(watcherID); err != nil {
		return nil, ErrNotFound
	}
	const query = `SELECT id, ticket_id, user_id, added_at FROM ticket_watchers WHERE ticket_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, ticketID, watcherID)
}

func (r *watcherRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Watcher, error) {
	var w domain.Watcher
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&w.ID, &w.TicketID, &w.UserID, &w.AddedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &w, nil
}

func (r *watcherRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Watcher, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, nil
	}
	const query = `
        SELECT id, ticket_id, user_id, added_at
        FROM ticket_watchers WHERE ticket_id=$1 ORDER BY added_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Watcher
	for rows.Next() {
		var w domain.Watcher
		if err := rows.Scan(&w.ID, &w.TicketID, &w.UserID, &w.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func insertWatcher(ctx context.Context, q querier, w *domain.Watcher) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ticket_watchers (id, ticket_id, user_id, added_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id, user_id) DO NOTHING
        RETURNING id`
	var id string
	if err := q.QueryRow(ctx, query, w.ID, w.TicketID, w.UserID, w.AddedAt).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWatcherExists
		}
		return err
	}
	return nil
}

func deleteWatcher(ctx context.Context, q querier, ticketID, watcherID string) error {
	if _, err := uuid.Parse(watcherID); err != nil {
		return ErrNotFound
	}
	cmd, err := q.Exec(ctx, `DELETE FROM ticket_watchers WHERE ticket_id=$1 AND id=$2`, ticketID, watcherID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
