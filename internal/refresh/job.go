// internal/refresh/job.go
//
// Refresh-job row model and status machine.
//
// Context
// -------
// One `refresh_job` row tracks the regeneration of a single output page
// for a single content family.  The row is created `pending` by the
// enqueuer, driven `processing → draft|failed|skipped` by the generation
// worker, and closed `draft → published|failed` by an admin.  Terminal
// rows are never reopened; re-refreshing a pair creates a new row.
//
// The partial-uniqueness invariant (at most one non-terminal row per
// family/page-type pair) is enforced at the store layer with a
// conditional insert, not here.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.

package refresh

import (
	"fmt"
	"time"
)

//
// Page-type archetypes
//

// PageType is one of the closed set of output page shapes a family may
// carry.  Archetypes are derived from data availability, never from
// configuration (see resolver.go).
type PageType string

const (
	PagePieces     PageType = "pieces"
	PageConseils   PageType = "conseils"
	PageGuideAchat PageType = "guide-achat"
	PageReference  PageType = "reference"
	PageDiagnostic PageType = "diagnostic"
)

// ValidPageType reports whether s names a known archetype.
func ValidPageType(s string) bool {
	switch PageType(s) {
	case PagePieces, PageConseils, PageGuideAchat, PageReference, PageDiagnostic:
		return true
	}
	return false
}

//
// Statuses
//

// Status is the lifecycle state of a refresh job.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusDraft         Status = "draft"
	StatusPublished     Status = "published"
	StatusAutoPublished Status = "auto_published"
	StatusFailed        Status = "failed"
	StatusSkipped       Status = "skipped"
)

// TerminalStatuses are the states with no outgoing transition.  Rows in a
// terminal state do not count toward the one-non-terminal-per-pair
// constraint, so a pair may be refreshed again after completion.
var TerminalStatuses = []Status{StatusPublished, StatusAutoPublished, StatusFailed, StatusSkipped}

// Terminal reports whether s admits no further transition.
func (s Status) Terminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s names a known status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusDraft, StatusPublished,
		StatusAutoPublished, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

//
// Trigger sources
//

// TriggerManual tags operator-initiated refreshes in both the
// trigger_source and trigger_job_id columns.
const TriggerManual = "manual"

// IngestTriggerSource derives the trigger tag for bus-driven refreshes,
// e.g. "auto_catalog_ingest" for an ingestion run named "catalog".
func IngestTriggerSource(source string) string {
	return "auto_" + source + "_ingest"
}

// RejectionPrefix distinguishes admin rejections from worker failures in
// the error_message column.
const RejectionPrefix = "rejected: "

//
// Row model
//

// Job mirrors one row in the persistent `refresh_job` table.
type Job struct {
	ID                 int64      `db:"id" json:"id"`
	FamilyID           int64      `db:"family_id" json:"family_id"`
	FamilyAlias        string     `db:"family_alias" json:"family_alias"`
	PageType           PageType   `db:"page_type" json:"page_type"`
	Status             Status     `db:"status" json:"status"`
	TriggerSource      string     `db:"trigger_source" json:"trigger_source"`
	TriggerJobID       string     `db:"trigger_job_id" json:"trigger_job_id"`
	SupplementaryFiles FileList   `db:"supplementary_files" json:"supplementary_files,omitempty"`
	QueueJobID         *string    `db:"queue_job_id" json:"queue_job_id,omitempty"`
	ErrorMessage       *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	PublishedAt        *time.Time `db:"published_at" json:"published_at,omitempty"`
	PublishedBy        *string    `db:"published_by" json:"published_by,omitempty"`
}

//
// Domain errors
//

// TransitionError reports an illegal admin transition.  The offending
// status is part of the message so the admin UI can show it verbatim.
type TransitionError struct {
	Verb string // "publish" or "reject"
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot %s entry with status '%s'", e.Verb, e.From)
}
