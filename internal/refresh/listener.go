// internal/refresh/listener.go
//
// Source-event listener and the manual trigger path.
//
// Context
// -------
// The Listener subscribes to the process dispatcher (internal/bus) and
// turns each completed ingestion run into refresh jobs: resolver fan-out
// for every affected family, plus the single-archetype diagnostic path.
// Failures are isolated per item — one family failing to enqueue never
// aborts the others; results are aggregated only for logging.
//
// The admin "trigger refresh" endpoint reuses the same machinery through
// TriggerManual with triggerSource and triggerJobId both "manual".
//
// Notes
// -----
// • A family alias that does not resolve is a warning, not an error:
//   nothing to refresh (see error taxonomy).
// • Oxford commas, two spaces after periods.

package refresh

import (
	"context"

	"go.uber.org/zap"

	"github.com/yanizio/refinery/internal/bus"
)

// FamilyLookup resolves an alias to an active family id.  Implemented by
// internal/family; must return an error for suspended, deleted, or
// unknown aliases.
type FamilyLookup interface {
	FamilyID(ctx context.Context, alias string) (int64, error)
}

// DiagnosticLookup resolves a diagnostic identifier to its record id.
// Diagnostics are a distinct content family, never mixed with the gamme
// pipeline.
type DiagnosticLookup interface {
	DiagnosticID(ctx context.Context, alias string) (int64, error)
}

// Listener reacts to ingestion completions and operator triggers.
type Listener struct {
	families    FamilyLookup
	diagnostics DiagnosticLookup
	resolver    *Resolver
	enqueuer    *Enqueuer
	log         *zap.SugaredLogger
}

// NewListener wires a Listener.  Call Register to attach it to a
// dispatcher.
func NewListener(families FamilyLookup, diagnostics DiagnosticLookup,
	resolver *Resolver, enqueuer *Enqueuer, log *zap.SugaredLogger) *Listener {
	if log == nil {
		log = zap.S()
	}
	return &Listener{
		families:    families,
		diagnostics: diagnostics,
		resolver:    resolver,
		enqueuer:    enqueuer,
		log:         log,
	}
}

// Register subscribes HandleEvent on d.
func (l *Listener) Register(d *bus.Dispatcher) {
	d.Subscribe(l.HandleEvent)
}

// HandleEvent processes one ingestion-completion event.
func (l *Listener) HandleEvent(ctx context.Context, ev bus.IngestionCompleted) {
	if ev.Status != bus.StatusDone {
		l.log.Debugw("ignoring ingestion event with non-done status",
			"job", ev.JobID, "status", ev.Status)
		return
	}

	if len(ev.AffectedFamilies) == 0 && len(ev.AffectedDiagnostics) == 0 {
		// Legitimate: the run touched nothing refreshable.
		l.log.Warnw("ingestion event touched nothing refreshable, discarding",
			"job", ev.JobID, "source", ev.Source)
		return
	}

	trigger := IngestTriggerSource(ev.Source)
	var queued int

	for _, alias := range ev.AffectedFamilies {
		queued += l.refreshFamily(ctx, alias, Request{
			TriggerSource:      trigger,
			TriggerJobID:       ev.JobID,
			SupplementaryFiles: ev.AffectedFamiliesToFiles[alias],
		})
	}

	for _, alias := range ev.AffectedDiagnostics {
		queued += l.refreshDiagnostic(ctx, alias, Request{
			TriggerSource: trigger,
			TriggerJobID:  ev.JobID,
		})
	}

	l.log.Infow("ingestion event processed",
		"job", ev.JobID, "source", ev.Source,
		"families", len(ev.AffectedFamilies),
		"diagnostics", len(ev.AffectedDiagnostics),
		"queued", queued)
}

// TriggerManual enqueues refreshes for the given family aliases on
// behalf of an operator and returns how many page types were queued.
func (l *Listener) TriggerManual(ctx context.Context, aliases []string) int {
	var queued int
	for _, alias := range aliases {
		queued += l.refreshFamily(ctx, alias, Request{
			TriggerSource: TriggerManual,
			TriggerJobID:  TriggerManual,
		})
	}
	return queued
}

// refreshFamily resolves and enqueues one family, isolating failures.
// Returns the number of page types queued.
func (l *Listener) refreshFamily(ctx context.Context, alias string, base Request) int {
	id, err := l.families.FamilyID(ctx, alias)
	if err != nil {
		l.log.Warnw("family alias did not resolve, nothing to refresh",
			"family", alias, "err", err)
		return 0
	}
	base.FamilyID = id
	base.FamilyAlias = alias

	pageTypes := l.resolver.Resolve(ctx, id, alias)
	if len(pageTypes) == 0 {
		l.log.Infow("no applicable page types for family", "family", alias)
		return 0
	}

	queued, err := l.enqueuer.EnqueueMany(ctx, base, pageTypes)
	if err != nil {
		l.log.Errorw("enqueue failed for family, continuing with others",
			"family", alias, "queued_before_failure", len(queued), "err", err)
	}
	return len(queued)
}

// refreshDiagnostic enqueues the single diagnostic archetype; no
// resolver fan-out is needed.
func (l *Listener) refreshDiagnostic(ctx context.Context, alias string, base Request) int {
	id, err := l.diagnostics.DiagnosticID(ctx, alias)
	if err != nil {
		l.log.Warnw("diagnostic alias did not resolve, nothing to refresh",
			"diagnostic", alias, "err", err)
		return 0
	}
	base.FamilyID = id
	base.FamilyAlias = alias

	queued, err := l.enqueuer.EnqueueMany(ctx, base, []PageType{PageDiagnostic})
	if err != nil {
		l.log.Errorw("enqueue failed for diagnostic, continuing with others",
			"diagnostic", alias, "err", err)
	}
	return len(queued)
}
