// internal/refresh/reaper.go
//
// Stuck-job reaper.
//
// Context
// -------
// A generation worker that crashes mid-run never reports back, leaving
// its refresh row in `processing` forever and — because processing is
// non-terminal — blocking every future refresh of that pair through the
// dedup constraint.  The reaper sweeps on a ticker and fails any row
// that has sat in processing longer than the configured age, freeing the
// pair for a manual re-trigger.

package refresh

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/refinery/internal/metrics"
)

// Reaper periodically fails stale processing rows.
type Reaper struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewReaper wires a Reaper.
func NewReaper(store *Store, maxAge, interval time.Duration, log *zap.SugaredLogger) *Reaper {
	if log == nil {
		log = zap.S()
	}
	return &Reaper{store: store, maxAge: maxAge, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.  Call on its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	n, err := r.store.FailStaleProcessing(ctx, r.maxAge)
	if err != nil {
		r.log.Warnw("reaper sweep failed", "err", err)
		return
	}
	if n > 0 {
		metrics.ReaperFailedTotal.Add(float64(n))
		r.log.Warnw("reaper failed stuck processing rows",
			"count", n, "max_age", r.maxAge)
	}
}
