// internal/refresh/qagate.go
//
// Protected-field QA gate.
//
// Context
// -------
// Generation workers are trusted with body content but *not* with the
// SEO-critical fields: title, primary heading, canonical URL, and meta
// description.  The gate compares those fields on every page touched by
// a refresh against the stored baseline snapshot and returns a binary
// verdict.  BLOCK is a policy verdict for the operator, never an error,
// and the check is strictly read-only — it neither publishes nor
// rejects anything.
//
// Notes
// -----
// • A page with no baseline snapshot is skipped: there is nothing to
//   protect yet.  Capturing baselines is the publisher's side of the
//   contract (see CaptureBaseline).
// • Oxford commas, two spaces after periods.

package refresh

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/refinery/internal/metrics"
)

// Verdicts.
const (
	VerdictGo    = "GO"
	VerdictBlock = "BLOCK"
)

// FieldMutation describes one protected field that drifted from baseline.
type FieldMutation struct {
	FamilyID int64    `json:"family_id"`
	PageType PageType `json:"page_type"`
	Field    string   `json:"field"`
	Baseline string   `json:"baseline"`
	Current  string   `json:"current"`
}

// GateResult is the outcome of one gate check.
type GateResult struct {
	Verdict       string          `json:"verdict"`
	MutationCount int             `json:"mutation_count"`
	Details       []FieldMutation `json:"details"`
}

// Gate runs the protected-field comparison.
type Gate struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// NewGate returns a Gate bound to db.
func NewGate(db *sqlx.DB, log *zap.SugaredLogger) *Gate {
	if log == nil {
		log = zap.S()
	}
	return &Gate{db: db, log: log}
}

// gateRow pairs current and baseline values for one page.
type gateRow struct {
	FamilyID     int64    `db:"family_id"`
	PageType     PageType `db:"page_type"`
	BaseTitle    string   `db:"base_title"`
	CurTitle     string   `db:"cur_title"`
	BaseHeading  string   `db:"base_heading"`
	CurHeading   string   `db:"cur_heading"`
	BaseCanon    string   `db:"base_canonical"`
	CurCanon     string   `db:"cur_canonical"`
	BaseMetaDesc string   `db:"base_meta_description"`
	CurMetaDesc  string   `db:"cur_meta_description"`
}

// CheckProtectedFields compares every refreshed page against its
// baseline and returns GO or BLOCK with the drift details.
func (g *Gate) CheckProtectedFields(ctx context.Context) (*GateResult, error) {
	const q = `
        SELECT b.family_id, b.page_type,
               b.title            AS base_title,
               c.title            AS cur_title,
               b.heading          AS base_heading,
               c.heading          AS cur_heading,
               b.canonical_url    AS base_canonical,
               c.canonical_url    AS cur_canonical,
               b.meta_description AS base_meta_description,
               c.meta_description AS cur_meta_description
        FROM   page_baseline b
        JOIN   page_content  c
               ON c.family_id = b.family_id AND c.page_type = b.page_type
        WHERE  EXISTS (
                 SELECT 1
                 FROM   refresh_job j
                 WHERE  j.family_id = b.family_id
                   AND  j.page_type = b.page_type
                   AND  j.status IN ('draft','published','auto_published'))`

	var rows []gateRow
	if err := g.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	res := &GateResult{Verdict: VerdictGo, Details: []FieldMutation{}}
	for _, r := range rows {
		res.compare(r, "title", r.BaseTitle, r.CurTitle)
		res.compare(r, "heading", r.BaseHeading, r.CurHeading)
		res.compare(r, "canonical_url", r.BaseCanon, r.CurCanon)
		res.compare(r, "meta_description", r.BaseMetaDesc, r.CurMetaDesc)
	}

	if res.MutationCount > 0 {
		res.Verdict = VerdictBlock
		metrics.QAGateBlockTotal.Inc()
		g.log.Warnw("qa gate blocked",
			"mutations", res.MutationCount, "pages_checked", len(rows))
	}
	return res, nil
}

func (r *GateResult) compare(row gateRow, field, baseline, current string) {
	if baseline == current {
		return
	}
	r.MutationCount++
	r.Details = append(r.Details, FieldMutation{
		FamilyID: row.FamilyID,
		PageType: row.PageType,
		Field:    field,
		Baseline: baseline,
		Current:  current,
	})
}

// CaptureBaseline snapshots the current protected fields for one page,
// replacing any previous snapshot.  Called after a publish is accepted
// so the next refresh is compared against what was actually approved.
func (g *Gate) CaptureBaseline(ctx context.Context, familyID int64, pageType PageType) error {
	const q = `
        INSERT INTO page_baseline
               (family_id, page_type, title, heading, canonical_url,
                meta_description, captured_at)
        SELECT family_id, page_type, title, heading, canonical_url,
               meta_description, NOW()
        FROM   page_content
        WHERE  family_id = ? AND page_type = ?
        ON DUPLICATE KEY UPDATE
               title            = VALUES(title),
               heading          = VALUES(heading),
               canonical_url    = VALUES(canonical_url),
               meta_description = VALUES(meta_description),
               captured_at      = VALUES(captured_at)`
	_, err := g.db.ExecContext(ctx, q, familyID, pageType)
	return err
}
