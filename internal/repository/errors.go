package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrStaleVersion is returned when a conditional write lost against a concurrent writer.
	ErrStaleVersion = errors.New("repository: stale version")
	// ErrWatcherExists is returned when a (ticket, user) watcher pair is already registered.
	ErrWatcherExists = errors.New("repository: watcher exists")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

// mapPgError folds driver errors into repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return errors.Join(ErrNotFound, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return errors.Join(ErrStaleVersion, err)
		}
	}
	return err
}
