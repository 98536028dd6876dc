package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketMutation is everything a single transition writes. Ticket holds the
// new state; the update only lands if the stored version still equals
// ExpectedVersion. Entry is appended in the same transaction, together with
// the optional watcher row change.
type TicketMutation struct {
	Ticket          *domain.Ticket
	ExpectedVersion int64
	Entry           *domain.ChangelogEntry
	AddWatcher      *domain.Watcher
	RemoveWatcherID string
}

// InactiveFilter selects tickets for the auto-close sweep, paged by id.
type InactiveFilter struct {
	Statuses      []domain.TicketStatus
	UpdatedBefore time.Time
	AfterID       string
	Limit         int
}

// TicketRepository encapsulates ticket persistence. It is the only writer of
// ticket workflow fields.
type TicketRepository interface {
	// Create assigns id, issue key and version, then stores the ticket and its
	// creation entry atomically.
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ChangelogEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByIssueKey(ctx context.Context, key string) (*domain.Ticket, error)
	// Apply commits a transition. It returns ErrStaleVersion when another writer
	// got there first and ErrNotFound when the ticket or watcher is missing.
	Apply(ctx context.Context, m TicketMutation) error
	ListInactive(ctx context.Context, filter InactiveFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, issue_key, tenant_id, tenant_key, reporter_id, title, description, type,
               client_priority, client_severity, status, resolution, escalation_reason, escalation_note,
               internal_assigned_to, pushed_to_systech_at, labels, created_at, updated_at, closed_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ChangelogEntry) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var number int64
		const counter = `
        INSERT INTO tenant_issue_counters (tenant_id, last_number) VALUES ($1, 1)
        ON CONFLICT (tenant_id) DO UPDATE SET last_number = tenant_issue_counters.last_number + 1
        RETURNING last_number`
		if err := tx.QueryRow(ctx, counter, ticket.TenantID).Scan(&number); err != nil {
			return fmt.Errorf("next issue number: %w", err)
		}
		ticket.IssueKey = fmt.Sprintf("%s-%d", ticket.TenantKey, number)
		ticket.Version = 1

		const query = `
        INSERT INTO tickets (id, issue_key, tenant_id, tenant_key, reporter_id, title, description, type,
            client_priority, client_severity, status, labels, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
		if _, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.IssueKey,
			ticket.TenantID,
			ticket.TenantKey,
			ticket.ReporterID,
			ticket.Title,
			ticket.Description,
			ticket.Type,
			ticket.ClientPriority,
			ticket.ClientSeverity,
			ticket.Status,
			ticket.Labels.Slice(),
			ticket.CreatedAt,
			ticket.UpdatedAt,
			ticket.Version,
		); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		entry.TicketID = ticket.ID
		return insertChangelog(ctx, tx, entry)
	})
	return mapPgError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByIssueKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE issue_key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Apply(ctx context.Context, m TicketMutation) error {
	if m.Ticket == nil || m.Entry == nil {
		return errors.New("ticket mutation requires ticket and entry")
	}
	t := m.Ticket
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		const update = `
        UPDATE tickets SET status=$1, resolution=$2, escalation_reason=$3, escalation_note=$4,
            internal_assigned_to=$5, pushed_to_systech_at=$6, labels=$7, updated_at=$8, closed_at=$9,
            version = version + 1
        WHERE id=$10 AND version=$11`
		cmd, err := tx.Exec(ctx, update,
			t.Status,
			t.Resolution,
			t.EscalationReason,
			t.EscalationNote,
			t.InternalAssignedTo,
			t.PushedToSystechAt,
			t.Labels.Slice(),
			t.UpdatedAt,
			t.ClosedAt,
			t.ID,
			m.ExpectedVersion,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, t.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrStaleVersion
		}

		if w := m.AddWatcher; w != nil {
			if err := insertWatcher(ctx, tx, w); err != nil {
				return err
			}
		}
		if m.RemoveWatcherID != "" {
			if err := deleteWatcher(ctx, tx, t.ID, m.RemoveWatcherID); err != nil {
				return err
			}
		}
		return insertChangelog(ctx, tx, m.Entry)
	})
	if err != nil {
		return mapPgError(err)
	}
	t.Version = m.ExpectedVersion + 1
	return nil
}

func (r *ticketRepository) ListInactive(ctx context.Context, filter InactiveFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	query := `SELECT ` + ticketColumns + `
             FROM tickets
             WHERE status = ANY($1) AND updated_at <= $2
               AND id > COALESCE(NULLIF($3, '')::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
             ORDER BY id
             LIMIT $4`
	rows, err := r.pool.Query(ctx, query, statuses, filter.UpdatedBefore, filter.AfterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		resolution *string
		labels     []string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.IssueKey,
		&ticket.TenantID,
		&ticket.TenantKey,
		&ticket.ReporterID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.ClientPriority,
		&ticket.ClientSeverity,
		&ticket.Status,
		&resolution,
		&ticket.EscalationReason,
		&ticket.EscalationNote,
		&ticket.InternalAssignedTo,
		&ticket.PushedToSystechAt,
		&labels,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	if resolution != nil {
		res := domain.Resolution(*resolution)
		ticket.Resolution = &res
	}
	ticket.Labels = domain.NewLabelSet(labels...)
	return &ticket, nil
}
