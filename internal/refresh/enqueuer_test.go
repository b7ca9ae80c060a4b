// internal/refresh/enqueuer_test.go
//
// Unit-tests for the enqueuer's insert → submit → persist-id sequence,
// including the dedup no-op and the submit-failure compensation.
//
// Run: go test ./internal/refresh -v

package refresh

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/refinery/internal/queue"
)

type fakeSubmitter struct {
	id       string
	err      error
	payloads []queue.Payload
}

func (f *fakeSubmitter) Enqueue(_ context.Context, p queue.Payload) (string, error) {
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func newMockEnqueuer(t *testing.T, sub *fakeSubmitter) (*Enqueuer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := NewStore(sqlx.NewDb(db, "mysql"))
	return NewEnqueuer(store, sub, nil), mock
}

func TestEnqueueHappyPath(t *testing.T) {
	sub := &fakeSubmitter{id: "qj_abc"}
	enq, mock := newMockEnqueuer(t, sub)

	mock.ExpectExec(`INSERT INTO refresh_job`).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(`UPDATE refresh_job SET queue_job_id`).
		WithArgs("qj_abc", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	queued, err := enq.Enqueue(context.Background(), Request{
		FamilyID: 7, FamilyAlias: "alternateur", PageType: PagePieces,
		TriggerSource: TriggerManual, TriggerJobID: TriggerManual,
	})
	if err != nil || !queued {
		t.Fatalf("want (true, nil), got (%v, %v)", queued, err)
	}
	if len(sub.payloads) != 1 || sub.payloads[0].RefreshJobID != 11 {
		t.Fatalf("unexpected payloads: %#v", sub.payloads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEnqueueDedupIsNoOp(t *testing.T) {
	sub := &fakeSubmitter{id: "qj_abc"}
	enq, mock := newMockEnqueuer(t, sub)

	mock.ExpectExec(`INSERT INTO refresh_job`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	queued, err := enq.Enqueue(context.Background(), Request{
		FamilyID: 7, FamilyAlias: "alternateur", PageType: PagePieces,
	})
	if err != nil {
		t.Fatalf("dedup must not be an error, got %v", err)
	}
	if queued {
		t.Fatal("dedup must report queued = false")
	}
	if len(sub.payloads) != 0 {
		t.Fatal("nothing must reach the queue on dedup")
	}
}

func TestEnqueueFailsRowWhenSubmitFails(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("queue unavailable")}
	enq, mock := newMockEnqueuer(t, sub)

	mock.ExpectExec(`INSERT INTO refresh_job`).
		WillReturnResult(sqlmock.NewResult(11, 1))
	// Compensation: the orphaned pending row is failed so the pair can
	// be re-triggered.
	mock.ExpectExec(`UPDATE refresh_job`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	queued, err := enq.Enqueue(context.Background(), Request{
		FamilyID: 7, FamilyAlias: "alternateur", PageType: PagePieces,
	})
	if err == nil || queued {
		t.Fatalf("want submit failure surfaced, got (%v, %v)", queued, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEnqueueManyAggregates(t *testing.T) {
	sub := &fakeSubmitter{id: "qj_abc"}
	enq, mock := newMockEnqueuer(t, sub)

	// pieces inserts, conseils dedups.
	mock.ExpectExec(`INSERT INTO refresh_job`).
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(`UPDATE refresh_job SET queue_job_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO refresh_job`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	queued, err := enq.EnqueueMany(context.Background(), Request{
		FamilyID: 7, FamilyAlias: "alternateur",
	}, []PageType{PagePieces, PageConseils})
	if err != nil {
		t.Fatalf("EnqueueMany error: %v", err)
	}
	if len(queued) != 1 || queued[0] != PagePieces {
		t.Fatalf("queued = %v, want [pieces]", queued)
	}
}
