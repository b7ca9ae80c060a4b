// internal/refresh/resolver.go
//
// Page-type resolution from data availability.
//
// Context
// -------
// A family's applicable archetypes are never configured; they are derived
// from what upstream data exists right now.  Three independent signals
// are checked, and every matching signal's page types are unioned:
//
//   1. purchase guide exists   → pieces + guide-achat (shared data source,
//      they must stay in sync)
//   2. advisory exists         → conseils
//   3. knowledge file on disk  → reference
//
// Each signal fails open to "not applicable": a missing guide is not an
// error, it is evidence the archetype does not apply.  Query errors are
// logged at warn and treated the same way, so one flaky signal never
// blocks the others.
//
// Notes
// -----
// • Signals are injected as small interfaces so the resolver is testable
//   without a database or a real filesystem.
// • Oxford commas, two spaces after periods.

package refresh

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// GuideChecker reports whether a purchase-guide record exists for a family.
type GuideChecker interface {
	GuideExists(ctx context.Context, familyID int64) (bool, error)
}

// AdvisoryChecker reports whether an advisory record exists for a family.
type AdvisoryChecker interface {
	AdvisoryExists(ctx context.Context, familyID int64) (bool, error)
}

// KnowledgeChecker reports whether a knowledge-base file exists for an
// alias.  Implemented by internal/knowledge; fakes stand in for tests.
type KnowledgeChecker interface {
	Exists(alias string) bool
}

// Resolver unions the three availability signals into an ordered
// archetype list.
type Resolver struct {
	guides     GuideChecker
	advisories AdvisoryChecker
	knowledge  KnowledgeChecker
	log        *zap.SugaredLogger
}

// NewResolver wires the three signals.
func NewResolver(g GuideChecker, a AdvisoryChecker, k KnowledgeChecker, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.S()
	}
	return &Resolver{guides: g, advisories: a, knowledge: k, log: log}
}

// Resolve returns the applicable page types for the family, in stable
// order.  The list may be empty; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, familyID int64, alias string) []PageType {
	var out []PageType

	ok, err := r.guides.GuideExists(ctx, familyID)
	if err != nil {
		r.log.Warnw("guide signal failed, treating as not applicable",
			"family", alias, "err", err)
	} else if ok {
		out = append(out, PagePieces, PageGuideAchat)
	}

	ok, err = r.advisories.AdvisoryExists(ctx, familyID)
	if err != nil {
		r.log.Warnw("advisory signal failed, treating as not applicable",
			"family", alias, "err", err)
	} else if ok {
		out = append(out, PageConseils)
	}

	if r.knowledge.Exists(alias) {
		out = append(out, PageReference)
	}

	return out
}

//
// sqlx-backed signal implementations
//

// SignalStore answers the guide and advisory signals from the database.
type SignalStore struct {
	db queryer
}

// queryer is the minimal sqlx surface SignalStore needs; *sqlx.DB and
// *sqlx.Tx both satisfy it.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// NewSignalStore returns a SignalStore bound to db.
func NewSignalStore(db queryer) *SignalStore {
	return &SignalStore{db: db}
}

// GuideExists implements GuideChecker.
func (s *SignalStore) GuideExists(ctx context.Context, familyID int64) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM purchase_guide WHERE family_id = ? LIMIT 1`, familyID)
}

// AdvisoryExists implements AdvisoryChecker.
func (s *SignalStore) AdvisoryExists(ctx context.Context, familyID int64) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM advisory WHERE family_id = ? LIMIT 1`, familyID)
}

func (s *SignalStore) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var dummy int
	err := s.db.GetContext(ctx, &dummy, q, args...)
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, err
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
