// internal/queue/store.go
//
// Persistence for queue rows.
//
// Context
// -------
// Claiming uses `FOR UPDATE SKIP LOCKED` (MySQL 8 / MariaDB 10.6) so
// several consumer goroutines — or several refineryd instances — can
// share one table without handing the same payload to two workers.
//
// Notes
// -----
// • All writes are single-row and state-guarded, mirroring the refresh
//   store's policy.
// • Oxford commas, two spaces after periods.

package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store wraps the queue_job table.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, refresh_job_id, family_id, family_alias, page_type,
       state, attempts, max_attempts, run_at, last_error, created_at, finished_at`

// Insert persists a new waiting row.
func (s *Store) Insert(ctx context.Context, j *Job) error {
	const q = `
        INSERT INTO queue_job
               (id, refresh_job_id, family_id, family_alias, page_type,
                state, attempts, max_attempts, run_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		j.ID, j.RefreshJobID, j.FamilyID, j.FamilyAlias, j.PageType,
		j.State, j.Attempts, j.MaxAttempts, j.RunAt, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert queue job %s: %w", j.ID, err)
	}
	return nil
}

// Claim atomically moves the oldest due waiting row to running and
// returns it.  Returns (nil, nil) when nothing is due.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var j Job
	err = tx.GetContext(ctx, &j, `
        SELECT `+jobColumns+`
        FROM   queue_job
        WHERE  state = 'waiting' AND run_at <= NOW()
        ORDER BY run_at ASC
        LIMIT  1
        FOR UPDATE SKIP LOCKED`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_job SET state = 'running' WHERE id = ?`, j.ID); err != nil {
		return nil, fmt.Errorf("claim queue job %s: %w", j.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.State = StateRunning
	return &j, nil
}

// MarkDone closes a delivered row.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE queue_job
           SET state = 'done', finished_at = NOW()
         WHERE id = ? AND state = 'running'`, id)
	return err
}

// Reschedule puts a failed delivery back to waiting with its attempt
// count bumped and the next run time set by the caller.
func (s *Store) Reschedule(ctx context.Context, id string, attempts int, runAt time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE queue_job
           SET state = 'waiting', attempts = ?, run_at = ?, last_error = ?
         WHERE id = ? AND state = 'running'`,
		attempts, runAt, lastErr, id)
	return err
}

// MarkFailed closes a row whose attempts are exhausted.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE queue_job
           SET state = 'failed', attempts = ?, last_error = ?, finished_at = NOW()
         WHERE id = ? AND state = 'running'`,
		attempts, lastErr, id)
	return err
}

// Depth counts rows still in flight (waiting or running).
func (s *Store) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM queue_job WHERE state IN ('waiting','running')`)
	return n, err
}

// CleanupFinished deletes done and failed rows older than retention and
// returns how many were removed.
func (s *Store) CleanupFinished(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        DELETE FROM queue_job
         WHERE state IN ('done','failed')
           AND finished_at < NOW() - INTERVAL ? SECOND`,
		int64(retention.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
