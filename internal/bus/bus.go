// internal/bus/bus.go
//
// Explicit, typed in-process event dispatch.
//
// Context
// -------
// Upstream ingestion publishes an IngestionCompleted event when a run
// finishes.  Instead of an ambient listener registry, one Dispatcher is
// constructed at process start and handed to both the publisher side
// (ingestion adapters, the admin replay endpoint) and the subscriber
// side (the refresh listener).  The dependency from event type to
// handler is therefore visible in cmd/refineryd, not inferred from
// annotations or init() side effects.
//
// Delivery is synchronous and in registration order; handlers isolate
// their own per-item failures and must not block for long.

package bus

import (
	"context"
	"sync"
)

// StatusDone is the only ingestion status that triggers refreshes.
const StatusDone = "done"

// IngestionCompleted is the inbound event contract (see the ingestion
// pipeline's publisher for the producing side).
type IngestionCompleted struct {
	JobID                   string              `json:"jobId"`
	Source                  string              `json:"source"`
	Status                  string              `json:"status"`
	AffectedFamilies        []string            `json:"affectedFamilies"`
	AffectedFamiliesToFiles map[string][]string `json:"affectedFamiliesToFiles"`
	AffectedDiagnostics     []string            `json:"affectedDiagnostics,omitempty"`
}

// Handler consumes one event.  Errors are the handler's own business;
// the dispatcher does not retry or aggregate.
type Handler func(ctx context.Context, ev IngestionCompleted)

// Dispatcher fans events out to registered handlers.  Safe for
// concurrent Publish; Subscribe is expected during bootstrap only.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a handler.  Registration order is delivery order.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Publish delivers ev to every handler synchronously, on the caller's
// goroutine (the event-handling thread; handlers only insert a row and
// submit a queue payload, both bounded I/O).
func (d *Dispatcher) Publish(ctx context.Context, ev IngestionCompleted) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}
