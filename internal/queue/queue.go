// internal/queue/queue.go
//
// Producer-side queue façade.
//
// Context
// -------
// The enqueuer talks to this type, never to the store directly.  Besides
// persistence it offers a subscriber fan-out: observers (dashboards,
// tests) receive a copy of every submitted or finished job on a buffered
// channel.  Sends are non-blocking; a slow subscriber misses updates
// rather than stalling the pipeline.

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/refinery/internal/metrics"
)

// SubscriberBuffer is the channel depth handed to each subscriber.
const SubscriberBuffer = 64

// Config carries the delivery-contract knobs (see internal/config.Queue).
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	Retention   time.Duration
}

// Queue is safe for concurrent use.
type Queue struct {
	store *Store
	cfg   Config

	mu          sync.RWMutex
	subscribers []chan *Job
}

// New returns a Queue over db with the given delivery contract.
func New(db *sqlx.DB, cfg Config) *Queue {
	return &Queue{store: NewStore(db), cfg: cfg}
}

// Enqueue persists a waiting job for the payload and returns its queue id.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (string, error) {
	j := NewJob(p, q.cfg.MaxAttempts)
	if err := q.store.Insert(ctx, j); err != nil {
		return "", err
	}
	q.refreshDepth(ctx)
	q.notify(j)
	return j.ID, nil
}

// Depth counts jobs still in flight, for dashboards.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	return q.store.Depth(ctx)
}

// Subscribe returns a buffered channel receiving job updates.  Callers
// must Unsubscribe when done; the channel is never closed by the queue.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan *Job, SubscriberBuffer)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe detaches a subscriber channel.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notify fans a job update out to all subscribers without blocking.
func (q *Queue) notify(j *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, ch := range q.subscribers {
		select {
		case ch <- j:
		default: // subscriber full, drop
		}
	}
}

// refreshDepth updates the queue-depth gauge, best-effort.
func (q *Queue) refreshDepth(ctx context.Context) {
	if n, err := q.store.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
}
