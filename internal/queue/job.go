// internal/queue/job.go
//
// Queue-job row model.
//
// Context
// -------
// The queue is the hand-off point between the refresh pipeline (producer)
// and the content-generation worker (consumer).  One row per submitted
// payload; delivery is at most `max_attempts` times with exponential
// backoff.  Completed and failed rows are retained for a bounded window
// purely for observability, then swept (see Store.CleanupFinished) —
// retention is queue housekeeping, not a correctness concern.

package queue

import (
	"time"

	"github.com/google/uuid"
)

// State is the delivery state of a queue row.
type State string

const (
	StateWaiting State = "waiting"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Payload is the contract consumed by the generation worker.
type Payload struct {
	RefreshJobID int64  `json:"refreshJobId" db:"refresh_job_id"`
	FamilyID     int64  `json:"familyId" db:"family_id"`
	FamilyAlias  string `json:"familyAlias" db:"family_alias"`
	PageType     string `json:"pageType" db:"page_type"`
}

// Job mirrors one row in the `queue_job` table.
type Job struct {
	ID          string     `db:"id" json:"id"`
	Payload
	State       State      `db:"state" json:"state"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	RunAt       time.Time  `db:"run_at" json:"run_at"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// NewJob builds a waiting row due immediately.
func NewJob(p Payload, maxAttempts int) *Job {
	now := time.Now()
	return &Job{
		ID:          "qj_" + uuid.NewString(),
		Payload:     p,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}
}

// NextBackoff returns the delay before delivery attempt n+1 given base b:
// b, 2b, 4b, …  Attempt numbering starts at 1 for the first retry.
func NextBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
