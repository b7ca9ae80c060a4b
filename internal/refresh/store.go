// internal/refresh/store.go
//
// Persistence for refresh-job rows.
//
// Context
// -------
// The `refresh_job` table is the single source of truth for the pipeline
// and the only shared mutable resource.  Every writer — listener-driven
// enqueue, worker status write-back, admin publish/reject, reaper — goes
// through one of the narrow, single-row operations below.
//
// MySQL has no partial unique index, so the "at most one non-terminal row
// per (family, page type) pair" invariant is emulated with a conditional
// `INSERT … SELECT … WHERE NOT EXISTS` (see Insert).  Zero rows affected
// means a non-terminal sibling already exists; callers treat that as a
// successful no-op.
//
// Notes
// -----
// • Admin transitions run in a transaction with `SELECT … FOR UPDATE` so
//   the downstream content flag flips atomically with the log row.
// • Oxford commas, two spaces after periods.

package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrDuplicate signals that a non-terminal job already exists for the
// family/page-type pair.  Expected and non-exceptional.
var ErrDuplicate = errors.New("refresh: non-terminal job already exists for pair")

// ErrNotFound is returned when a job id does not resolve to a row.
var ErrNotFound = errors.New("refresh: job not found")

// Store wraps the refresh_job table plus the downstream page_content flag.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, family_id, family_alias, page_type, status,
       trigger_source, trigger_job_id, supplementary_files, queue_job_id,
       error_message, created_at, updated_at, published_at, published_by`

//
// Insert (dedup checkpoint)
//

// Insert creates a pending row for the pair unless a non-terminal sibling
// exists, in which case ErrDuplicate is returned and nothing is written.
// The conditional insert is the sole concurrency guard; no application
// locking is used.
func (s *Store) Insert(ctx context.Context, j *Job) (int64, error) {
	const q = `
        INSERT INTO refresh_job
               (family_id, family_alias, page_type, status,
                trigger_source, trigger_job_id, supplementary_files,
                created_at, updated_at)
        SELECT ?, ?, ?, 'pending', ?, ?, ?, NOW(), NOW()
        FROM   DUAL
        WHERE  NOT EXISTS (
                 SELECT 1
                 FROM   refresh_job
                 WHERE  family_id = ?
                   AND  page_type = ?
                   AND  status NOT IN ('published','auto_published','failed','skipped'))`

	res, err := s.db.ExecContext(ctx, q,
		j.FamilyID, j.FamilyAlias, j.PageType,
		j.TriggerSource, j.TriggerJobID, j.SupplementaryFiles,
		j.FamilyID, j.PageType)
	if err != nil {
		return 0, fmt.Errorf("insert refresh job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert refresh job: rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrDuplicate
	}
	return res.LastInsertId()
}

//
// Reads
//

// ByID fetches one row or ErrNotFound.
func (s *Store) ByID(ctx context.Context, id int64) (*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM refresh_job WHERE id = ? LIMIT 1`
	var j Job
	if err := s.db.GetContext(ctx, &j, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListFilter narrows List; zero values mean "no filter".
type ListFilter struct {
	Status      Status
	PageType    PageType
	FamilyAlias string
	Limit       int
	Offset      int
}

// List returns rows newest-first, filtered and paginated.  Limit must be
// validated by the caller (admin boundary enforces 1–200).
func (s *Store) List(ctx context.Context, f ListFilter) ([]Job, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.PageType != "" {
		where = append(where, "page_type = ?")
		args = append(args, f.PageType)
	}
	if f.FamilyAlias != "" {
		where = append(where, "family_alias = ?")
		args = append(args, f.FamilyAlias)
	}

	q := `SELECT ` + jobColumns + ` FROM refresh_job`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	jobs := make([]Job, 0, f.Limit)
	if err := s.db.SelectContext(ctx, &jobs, q, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountsByStatus returns row counts grouped by status for the dashboard.
func (s *Store) CountsByStatus(ctx context.Context) (map[Status]int, error) {
	const q = `SELECT status, COUNT(*) AS n FROM refresh_job GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Status]int, 8)
	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// Recent returns the n newest rows for the dashboard.
func (s *Store) Recent(ctx context.Context, n int) ([]Job, error) {
	return s.List(ctx, ListFilter{Limit: n})
}

//
// Worker-driven transitions (single-row, status-guarded)
//

// MarkProcessing moves a pending row to processing when the queue
// consumer claims its payload.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	return s.guardedUpdate(ctx, id,
		`UPDATE refresh_job
            SET status = 'processing', updated_at = NOW()
          WHERE id = ? AND status = 'pending'`)
}

// MarkDraft records a successful generation write-back.
func (s *Store) MarkDraft(ctx context.Context, id int64) error {
	return s.guardedUpdate(ctx, id,
		`UPDATE refresh_job
            SET status = 'draft', updated_at = NOW()
          WHERE id = ? AND status = 'processing'`)
}

// MarkSkipped records a generation run that decided nothing changed.
func (s *Store) MarkSkipped(ctx context.Context, id int64) error {
	return s.guardedUpdate(ctx, id,
		`UPDATE refresh_job
            SET status = 'skipped', updated_at = NOW()
          WHERE id = ? AND status = 'processing'`)
}

// MarkAutoPublished records a generation run that was allowed to go
// live without operator review.  Like Publish it flips the downstream
// content flags in the same transaction, with "system" as the publisher.
func (s *Store) MarkAutoPublished(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var row struct {
		Status   Status   `db:"status"`
		FamilyID int64    `db:"family_id"`
		PageType PageType `db:"page_type"`
	}
	err = tx.GetContext(ctx, &row,
		`SELECT status, family_id, page_type FROM refresh_job WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if row.Status != StatusProcessing {
		return fmt.Errorf("refresh: job %d not in expected status for transition", id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_job
            SET status = 'auto_published', published_at = NOW(),
                published_by = 'system', updated_at = NOW()
          WHERE id = ?`, id); err != nil {
		return fmt.Errorf("auto-publish refresh job %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE page_content
            SET is_draft = 0, is_published = 1
          WHERE family_id = ? AND page_type = ?`,
		row.FamilyID, row.PageType); err != nil {
		return fmt.Errorf("flip content flag for job %d: %w", id, err)
	}

	return tx.Commit()
}

// MarkFailed records a worker-originated failure with its message.  Rows
// still pending fail too, covering queue-level attempt exhaustion before
// any claim happened.
func (s *Store) MarkFailed(ctx context.Context, id int64, msg string) error {
	const q = `
        UPDATE refresh_job
           SET status = 'failed', error_message = ?, updated_at = NOW()
         WHERE id = ? AND status IN ('pending','processing')`
	res, err := s.db.ExecContext(ctx, q, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("refresh: mark failed: job %d not in a failable status", id)
	}
	return nil
}

// guardedUpdate runs a status-guarded single-row update and surfaces a
// zero-row result as an error so illegal worker transitions never pass
// silently.
func (s *Store) guardedUpdate(ctx context.Context, id int64, q string) error {
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("refresh: job %d not in expected status for transition", id)
	}
	return nil
}

// SetQueueJobID persists the queue's assigned identifier for traceability.
// Failure here only degrades observability; callers log and move on.
func (s *Store) SetQueueJobID(ctx context.Context, id int64, queueJobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_job SET queue_job_id = ?, updated_at = NOW() WHERE id = ?`,
		queueJobID, id)
	return err
}

//
// Admin transitions
//

// Publish moves a draft row to published and, in the same transaction,
// flips the denormalized flags on the downstream content row so the
// serving layer picks the new content up.  A publish that updates the log
// but not the flag is a defect, hence the single transaction.
//
// Publishing from any status other than draft returns *TransitionError
// naming the offending status; nothing is written.
func (s *Store) Publish(ctx context.Context, id int64, admin string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var row struct {
		Status   Status   `db:"status"`
		FamilyID int64    `db:"family_id"`
		PageType PageType `db:"page_type"`
	}
	err = tx.GetContext(ctx, &row,
		`SELECT status, family_id, page_type FROM refresh_job WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if row.Status != StatusDraft {
		return &TransitionError{Verb: "publish", From: row.Status}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_job
            SET status = 'published', published_at = NOW(), published_by = ?,
                updated_at = NOW()
          WHERE id = ?`, admin, id); err != nil {
		return fmt.Errorf("publish refresh job %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE page_content
            SET is_draft = 0, is_published = 1
          WHERE family_id = ? AND page_type = ?`,
		row.FamilyID, row.PageType); err != nil {
		return fmt.Errorf("flip content flag for job %d: %w", id, err)
	}

	return tx.Commit()
}

// Reject moves a draft row to failed with the operator's reason, prefixed
// so rejections stay distinguishable from worker failures.  The caller
// must have validated that reason is non-empty.
func (s *Store) Reject(ctx context.Context, id int64, reason string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status Status
	err = tx.GetContext(ctx, &status,
		`SELECT status FROM refresh_job WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if status != StatusDraft {
		return &TransitionError{Verb: "reject", From: status}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_job
            SET status = 'failed', error_message = ?, updated_at = NOW()
          WHERE id = ?`, RejectionPrefix+reason, id); err != nil {
		return fmt.Errorf("reject refresh job %d: %w", id, err)
	}

	return tx.Commit()
}

//
// Reaper support
//

// FailStaleProcessing fails every row stuck in processing longer than
// maxAge and returns how many were swept.  The worker never reports back
// for these rows (crash mid-generation), so the age on updated_at is the
// only signal available.
func (s *Store) FailStaleProcessing(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `
        UPDATE refresh_job
           SET status = 'failed',
               error_message = CONCAT('stuck in processing since ', updated_at),
               updated_at = NOW()
         WHERE status = 'processing'
           AND updated_at < NOW() - INTERVAL ? SECOND`
	res, err := s.db.ExecContext(ctx, q, int64(maxAge.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
