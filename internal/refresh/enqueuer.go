// internal/refresh/enqueuer.go
//
// Idempotent job enqueueing.
//
// Context
// -------
// The enqueuer is the only producer of refresh_job rows.  The insert is
// the dedup checkpoint: when the conditional insert reports a duplicate
// the attempt becomes a success-no-op, logged at warn and reported as
// "not queued" — never an error to the caller.  Only after a successful
// insert is a payload submitted to the queue; the queue's assigned id is
// then persisted best-effort for traceability.
//
// Notes
// -----
// • A queue-submit failure marks the fresh row failed so the pair is not
//   wedged behind a pending row that will never run, then surfaces the
//   error so the caller can isolate it per family.
// • Oxford commas, two spaces after periods.

package refresh

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/refinery/internal/metrics"
	"github.com/yanizio/refinery/internal/queue"
)

// Submitter is the slice of the queue the enqueuer needs; *queue.Queue
// satisfies it, and tests inject fakes.
type Submitter interface {
	Enqueue(ctx context.Context, p queue.Payload) (string, error)
}

// Request carries everything needed to enqueue one (family, page type)
// refresh.
type Request struct {
	FamilyID           int64
	FamilyAlias        string
	PageType           PageType
	TriggerSource      string
	TriggerJobID       string
	SupplementaryFiles []string
}

// Enqueuer inserts tracking rows and submits queue payloads.
type Enqueuer struct {
	store *Store
	queue Submitter
	log   *zap.SugaredLogger
}

// NewEnqueuer wires an Enqueuer.
func NewEnqueuer(store *Store, q Submitter, log *zap.SugaredLogger) *Enqueuer {
	if log == nil {
		log = zap.S()
	}
	return &Enqueuer{store: store, queue: q, log: log}
}

// Enqueue runs the insert → submit → persist-id sequence for one pair.
// Returns false with a nil error on dedup no-op.
func (e *Enqueuer) Enqueue(ctx context.Context, req Request) (bool, error) {
	id, err := e.store.Insert(ctx, &Job{
		FamilyID:           req.FamilyID,
		FamilyAlias:        req.FamilyAlias,
		PageType:           req.PageType,
		TriggerSource:      req.TriggerSource,
		TriggerJobID:       req.TriggerJobID,
		SupplementaryFiles: FileList(req.SupplementaryFiles),
	})
	if errors.Is(err, ErrDuplicate) {
		e.log.Warnw("refresh already in flight, skipping",
			"family", req.FamilyAlias, "page_type", req.PageType)
		metrics.RefreshDedupTotal.WithLabelValues(string(req.PageType)).Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	queueID, err := e.queue.Enqueue(ctx, queue.Payload{
		RefreshJobID: id,
		FamilyID:     req.FamilyID,
		FamilyAlias:  req.FamilyAlias,
		PageType:     string(req.PageType),
	})
	if err != nil {
		// Fail the row so the pair can be re-triggered; then surface.
		if ferr := e.store.MarkFailed(ctx, id,
			fmt.Sprintf("queue submit failed: %v", err)); ferr != nil {
			e.log.Errorw("failed to fail unqueued refresh row",
				"refresh_job", id, "err", ferr)
		}
		return false, fmt.Errorf("submit refresh %d to queue: %w", id, err)
	}

	if err := e.store.SetQueueJobID(ctx, id, queueID); err != nil {
		// Job is already runnable; losing the id only degrades tracing.
		e.log.Warnw("could not persist queue job id",
			"refresh_job", id, "queue_job", queueID, "err", err)
	}

	metrics.RefreshEnqueuedTotal.WithLabelValues(string(req.PageType)).Inc()
	e.log.Infow("refresh queued",
		"refresh_job", id, "queue_job", queueID,
		"family", req.FamilyAlias, "page_type", req.PageType,
		"trigger", req.TriggerSource)
	return true, nil
}

// EnqueueMany enqueues one request per page type and returns the page
// types actually queued (dedup no-ops excluded).  The first hard error
// aborts the remainder; dedup never does.
func (e *Enqueuer) EnqueueMany(ctx context.Context, base Request, pageTypes []PageType) ([]PageType, error) {
	queued := make([]PageType, 0, len(pageTypes))
	for _, pt := range pageTypes {
		req := base
		req.PageType = pt
		ok, err := e.Enqueue(ctx, req)
		if err != nil {
			return queued, err
		}
		if ok {
			queued = append(queued, pt)
		}
	}
	return queued, nil
}
