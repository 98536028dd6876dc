package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// ChangelogCursor marks the last entry a reader has seen. Entries are ordered
// by (CreatedAt, Seq).
type ChangelogCursor struct {
	CreatedAt time.Time
	Seq       int64
}

// ChangelogRepository stores audit entries. There is deliberately no update
// or delete.
type ChangelogRepository interface {
	// Append writes a standalone entry; ErrNotFound when the ticket does not exist.
	Append(ctx context.Context, entry *domain.ChangelogEntry) error
	// ListByTicket returns up to limit entries strictly after the cursor (nil = from the start).
	ListByTicket(ctx context.Context, ticketID string, after *ChangelogCursor, limit int) ([]domain.ChangelogEntry, error)
}

type changelogRepository struct {
	pool *pgxpool.Pool
}

// NewChangelogRepository builds repository.
func NewChangelogRepository(pool *pgxpool.Pool) ChangelogRepository {
	return &changelogRepository{pool: pool}
}

func (r *changelogRepository) Append(ctx context.Context, entry *domain.ChangelogEntry) error {
	if _, err := uuid.Parse(entry.TicketID); err != nil {
		return ErrNotFound
	}
	return mapPgError(insertChangelog(ctx, r.pool, entry))
}

func insertChangelog(ctx context.Context, q querier, entry *domain.ChangelogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	const query = `
        INSERT INTO ticket_changelog (id, ticket_id, change_type, user_id, user_name, old_value, new_value, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING seq`
	return q.QueryRow(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.ChangeType,
		entry.UserID,
		entry.UserName,
		entry.OldValue,
		entry.NewValue,
		metadata,
		entry.CreatedAt,
	).Scan(&entry.Seq)
}

func (r *changelogRepository) ListByTicket(ctx context.Context, ticketID string, after *ChangelogCursor, limit int) ([]domain.ChangelogEntry, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var (
		afterAt  *time.Time
		afterSeq int64
	)
	if after != nil {
		afterAt = &after.CreatedAt
		afterSeq = after.Seq
	}
	const query = `
        SELECT id, ticket_id, seq, change_type, user_id, user_name, old_value, new_value, metadata, created_at
        FROM ticket_changelog
        WHERE ticket_id=$1 AND ($2::timestamptz IS NULL OR (created_at, seq) > ($2::timestamptz, $3))
        ORDER BY created_at ASC, seq ASC
        LIMIT $4`
	rows, err := r.pool.Query(ctx, query, ticketID, afterAt, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChangelogEntry
	for rows.Next() {
		var entry domain.ChangelogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Seq,
			&entry.ChangeType,
			&entry.UserID,
			&entry.UserName,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
