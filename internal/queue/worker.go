// internal/queue/worker.go
//
// Consumer loop and the generation-worker contract.
//
// Context
// -------
// Refinery does not generate content itself.  The Consumer claims due
// payloads and hands them to a registered Handler — the external
// content-generation worker.  What Refinery does own is the delivery
// contract (attempts, backoff, retention) and the write-back of each
// outcome into the refresh log via the Tracker.
//
// Delivery semantics
// ------------------
//   • at most cfg.MaxAttempts deliveries per payload,
//   • exponential backoff between attempts, starting at cfg.BackoffBase,
//   • attempt exhaustion fails both the queue row and the refresh row.
//
// There is no operator cancellation of an in-flight payload; exhaustion
// or an admin reject of the resulting draft are the only stops.

package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome is what a Handler reports for a successful run.
type Outcome string

const (
	OutcomeDraft         Outcome = "draft"          // a draft row awaits review
	OutcomeSkipped       Outcome = "skipped"        // generation decided nothing changed
	OutcomeAutoPublished Outcome = "auto_published" // generation went live unreviewed
)

// Handler is implemented by the content-generation worker.  Returning an
// error triggers the retry/backoff policy; returning an Outcome records
// the run in the refresh log.
type Handler interface {
	Handle(ctx context.Context, p Payload) (Outcome, error)
}

// Tracker is the slice of the refresh store the consumer needs to record
// lifecycle transitions.  *refresh.Store satisfies it.
type Tracker interface {
	MarkProcessing(ctx context.Context, refreshJobID int64) error
	MarkDraft(ctx context.Context, refreshJobID int64) error
	MarkSkipped(ctx context.Context, refreshJobID int64) error
	MarkAutoPublished(ctx context.Context, refreshJobID int64) error
	MarkFailed(ctx context.Context, refreshJobID int64, msg string) error
}

// Consumer polls the queue and drives deliveries.
type Consumer struct {
	store   *Store
	queue   *Queue
	tracker Tracker
	handler Handler
	cfg     Config

	workers      int
	pollInterval time.Duration
	log          *zap.SugaredLogger

	wg sync.WaitGroup
}

// NewConsumer wires a Consumer.  handler may be nil until Start, but
// Start panics without one — a queue with no consumer contract is a
// deployment error, not a runtime condition.
func NewConsumer(q *Queue, tracker Tracker, handler Handler,
	workers int, pollInterval time.Duration, log *zap.SugaredLogger) *Consumer {
	if log == nil {
		log = zap.S()
	}
	return &Consumer{
		store:        q.store,
		queue:        q,
		tracker:      tracker,
		handler:      handler,
		cfg:          q.cfg,
		workers:      workers,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Start launches the worker goroutines plus one retention sweeper.  They
// run until ctx is cancelled; Wait blocks until all have drained.
func (c *Consumer) Start(ctx context.Context) {
	if c.handler == nil {
		panic("queue: consumer started without a handler")
	}

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(n int) {
			defer c.wg.Done()
			c.pollLoop(ctx, n)
		}(i)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.retentionLoop(ctx)
	}()

	c.log.Infow("queue consumer online",
		"workers", c.workers, "poll_interval", c.pollInterval)
}

// Wait blocks until every goroutine started by Start has returned.
func (c *Consumer) Wait() { c.wg.Wait() }

func (c *Consumer) pollLoop(ctx context.Context, n int) {
	t := time.NewTicker(c.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		// Drain everything due before sleeping again.
		for {
			job, err := c.store.Claim(ctx)
			if err != nil {
				c.log.Errorw("queue claim failed", "worker", n, "err", err)
				break
			}
			if job == nil {
				break
			}
			c.deliver(ctx, job)
		}
	}
}

// deliver runs one claimed payload through the handler and records the
// outcome on both the queue row and the refresh row.
func (c *Consumer) deliver(ctx context.Context, job *Job) {
	// First delivery moves the refresh row to processing; retries find it
	// there already.
	if job.Attempts == 0 {
		if err := c.tracker.MarkProcessing(ctx, job.RefreshJobID); err != nil {
			c.log.Warnw("mark processing failed",
				"queue_job", job.ID, "refresh_job", job.RefreshJobID, "err", err)
		}
	}

	outcome, err := c.handler.Handle(ctx, job.Payload)
	if err != nil {
		c.retryOrFail(ctx, job, err)
		return
	}

	var track func(context.Context, int64) error
	switch outcome {
	case OutcomeDraft:
		track = c.tracker.MarkDraft
	case OutcomeSkipped:
		track = c.tracker.MarkSkipped
	case OutcomeAutoPublished:
		track = c.tracker.MarkAutoPublished
	default:
		// An outcome outside the contract is a bug in the generation
		// worker, not a transient failure; fail both rows rather than
		// guessing a lifecycle state.
		msg := "unknown outcome '" + string(outcome) + "'"
		c.log.Errorw("handler returned unknown outcome",
			"queue_job", job.ID, "refresh_job", job.RefreshJobID,
			"outcome", string(outcome))
		if err := c.store.MarkFailed(ctx, job.ID, job.Attempts+1, msg); err != nil {
			c.log.Errorw("mark queue job failed failed", "queue_job", job.ID, "err", err)
		}
		if err := c.tracker.MarkFailed(ctx, job.RefreshJobID, msg); err != nil {
			c.log.Errorw("refresh failure write-back failed",
				"queue_job", job.ID, "refresh_job", job.RefreshJobID, "err", err)
		}
		c.queue.refreshDepth(ctx)
		return
	}

	if err := c.store.MarkDone(ctx, job.ID); err != nil {
		c.log.Errorw("mark queue job done failed", "queue_job", job.ID, "err", err)
	}

	if trackErr := track(ctx, job.RefreshJobID); trackErr != nil {
		c.log.Errorw("refresh write-back failed",
			"queue_job", job.ID, "refresh_job", job.RefreshJobID, "err", trackErr)
	}

	c.queue.refreshDepth(ctx)
	c.queue.notify(job)
}

func (c *Consumer) retryOrFail(ctx context.Context, job *Job, cause error) {
	attempts := job.Attempts + 1

	if attempts >= job.MaxAttempts {
		if err := c.store.MarkFailed(ctx, job.ID, attempts, cause.Error()); err != nil {
			c.log.Errorw("mark queue job failed failed", "queue_job", job.ID, "err", err)
		}
		if err := c.tracker.MarkFailed(ctx, job.RefreshJobID, cause.Error()); err != nil {
			c.log.Errorw("refresh failure write-back failed",
				"queue_job", job.ID, "refresh_job", job.RefreshJobID, "err", err)
		}
		c.log.Warnw("queue job exhausted attempts",
			"queue_job", job.ID, "refresh_job", job.RefreshJobID,
			"attempts", attempts, "err", cause)
		c.queue.refreshDepth(ctx)
		return
	}

	delay := NextBackoff(c.cfg.BackoffBase, attempts)
	if err := c.store.Reschedule(ctx, job.ID, attempts,
		time.Now().Add(delay), cause.Error()); err != nil {
		c.log.Errorw("queue reschedule failed", "queue_job", job.ID, "err", err)
		return
	}
	c.log.Infow("queue job rescheduled",
		"queue_job", job.ID, "attempt", attempts, "delay", delay, "err", cause)
}

func (c *Consumer) retentionLoop(ctx context.Context) {
	// Sweep at a fraction of the retention window; hourly at most.
	interval := c.cfg.Retention / 24
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Minute {
		interval = time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.store.CleanupFinished(ctx, c.cfg.Retention)
			if err != nil {
				c.log.Warnw("queue retention sweep failed", "err", err)
				continue
			}
			if n > 0 {
				c.log.Infow("queue retention sweep", "removed", n)
			}
		}
	}
}
