package family

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when an alias does not resolve to an active
// record.  Callers treat it as "nothing to refresh," not as a failure.
var ErrNotFound = errors.New("family not found")

// AllActive returns every family that is neither suspended nor deleted.
// Used by admin dashboards and batch re-triggers, not by the event path.
func AllActive(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	const q = `
        SELECT id, alias, name, suspended_at, deleted_at, created_at
        FROM   family
        WHERE  suspended_at IS NULL
          AND  deleted_at   IS NULL`
	var rows []Record
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByAlias fetches a single active family row.  The caller supplies a
// context so the lookup respects request deadlines.
func ByAlias(ctx context.Context, db *sqlx.DB, alias string) (*Record, error) {
	const q = `
        SELECT id, alias, name, suspended_at, deleted_at, created_at
        FROM   family
        WHERE  alias = ?
          AND  suspended_at IS NULL
          AND  deleted_at   IS NULL
        LIMIT  1`
	var rec Record
	if err := db.GetContext(ctx, &rec, q, alias); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DiagnosticByAlias fetches a single diagnostic row by identifier.
func DiagnosticByAlias(ctx context.Context, db *sqlx.DB, alias string) (*Diagnostic, error) {
	const q = `
        SELECT id, alias, name, created_at
        FROM   diagnostic
        WHERE  alias = ?
        LIMIT  1`
	var rec Diagnostic
	if err := db.GetContext(ctx, &rec, q, alias); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
