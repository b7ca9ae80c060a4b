package family

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/refinery/internal/metrics"
)

// Static defaults.  Override via the Cache constructor if desired.
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 500
	EvictInterval = 5 * time.Minute
)

// Cache lazily loads family records by alias, stores them in a sync.Map,
// and evicts them on idle TTL or LRU pressure.  One ingestion event can
// touch dozens of families, so the hot path (FamilyID) must not hit the
// database per item once warm.
type Cache struct {
	db          *sqlx.DB
	sfg         singleflight.Group
	m           sync.Map
	evictTicker *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
	idleTTL     time.Duration
	maxEntries  int
}

// entry wraps a Record with its last-access stamp for the evictor.
type entry struct {
	rec      *Record
	lastSeen int64 // unix nanos, atomically updated
}

// New constructs a Cache and starts the background evictor.
func New(db *sqlx.DB, idleTTL time.Duration, maxEntries int) *Cache {
	c := &Cache{
		db:         db,
		done:       make(chan struct{}),
		idleTTL:    idleTTL,
		maxEntries: maxEntries,
	}
	c.evictTicker = time.NewTicker(EvictInterval)
	go c.evictLoop()
	return c
}

// Get returns the Record for alias, loading it on demand.
func (c *Cache) Get(ctx context.Context, alias string) (*Record, error) {
	if v, ok := c.m.Load(alias); ok {
		ent := v.(*entry)
		atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
		return ent.rec, nil
	}

	v, err, _ := c.sfg.Do(alias, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := c.m.Load(alias); ok {
			ent := v.(*entry)
			atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
			return ent.rec, nil
		}
		rec, err := ByAlias(ctx, c.db, alias)
		if err != nil {
			metrics.FamilyLoadErrorsTotal.Inc()
			return nil, err
		}
		c.m.Store(alias, &entry{rec: rec, lastSeen: time.Now().UnixNano()})
		metrics.FamilyLoadTotal.Inc()
		metrics.ActiveFamilies.Inc()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// FamilyID implements refresh.FamilyLookup.
func (c *Cache) FamilyID(ctx context.Context, alias string) (int64, error) {
	rec, err := c.Get(ctx, alias)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// DiagnosticID implements refresh.DiagnosticLookup.  Diagnostic lookups
// are rare enough that they go straight to the repository.
func (c *Cache) DiagnosticID(ctx context.Context, alias string) (int64, error) {
	rec, err := DiagnosticByAlias(ctx, c.db, alias)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Invalidate drops one alias from the cache, forcing a reload on next
// use.  Called when an admin suspends or deletes a family.
func (c *Cache) Invalidate(alias string) {
	if _, ok := c.m.LoadAndDelete(alias); ok {
		metrics.ActiveFamilies.Dec()
	}
}

// Close stops the evictor goroutine.  Stop alone is not enough: it does
// not close the ticker channel, so the loop also selects on done.  Safe
// to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.evictTicker.Stop()
		close(c.done)
	})
}
