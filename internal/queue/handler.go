// internal/queue/handler.go
//
// Process-wide handler registry.
//
// The generation worker links into the binary and registers its Handler
// from an init function, the same way optional components self-register
// elsewhere in the codebase.  The orchestrator checks Registered() at
// boot: with no handler present the consumer loop is simply not started,
// and the queue accumulates work for an out-of-process worker instead.

package queue

import "sync"

var (
	regMu      sync.Mutex
	registered Handler
)

// RegisterHandler installs the process-wide generation handler.  Calling
// it twice is a wiring bug and panics.
func RegisterHandler(h Handler) {
	regMu.Lock()
	defer regMu.Unlock()
	if registered != nil {
		panic("queue: handler registered twice")
	}
	registered = h
}

// Registered returns the installed handler, or nil when this binary
// carries no generation worker.
func Registered() Handler {
	regMu.Lock()
	defer regMu.Unlock()
	return registered
}
