// internal/queue/worker_test.go
//
// Behavior tests for the consumer's delivery and retry policy using
// sqlmock persistence and in-memory fakes for the handler and tracker.
//
// Run: go test ./internal/queue -v

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

type fakeTracker struct {
	processing    []int64
	drafts        []int64
	skipped       []int64
	autoPublished []int64
	failed        map[int64]string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failed: map[int64]string{}}
}

func (f *fakeTracker) MarkProcessing(_ context.Context, id int64) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeTracker) MarkDraft(_ context.Context, id int64) error {
	f.drafts = append(f.drafts, id)
	return nil
}

func (f *fakeTracker) MarkSkipped(_ context.Context, id int64) error {
	f.skipped = append(f.skipped, id)
	return nil
}

func (f *fakeTracker) MarkAutoPublished(_ context.Context, id int64) error {
	f.autoPublished = append(f.autoPublished, id)
	return nil
}

func (f *fakeTracker) MarkFailed(_ context.Context, id int64, msg string) error {
	f.failed[id] = msg
	return nil
}

type fakeHandler struct {
	outcome Outcome
	err     error
}

func (f *fakeHandler) Handle(context.Context, Payload) (Outcome, error) {
	return f.outcome, f.err
}

func newTestConsumer(t *testing.T, h Handler, tr Tracker) (*Consumer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	q := New(sqlx.NewDb(db, "mysql"), Config{
		MaxAttempts: 2,
		BackoffBase: 30 * time.Second,
		Retention:   72 * time.Hour,
	})
	return NewConsumer(q, tr, h, 1, time.Second, nil), mock
}

func testJob() *Job {
	return &Job{
		ID:          "qj_1",
		Payload:     Payload{RefreshJobID: 11, FamilyID: 7, FamilyAlias: "alternateur", PageType: "pieces"},
		State:       StateRunning,
		Attempts:    0,
		MaxAttempts: 2,
	}
}

func TestDeliverSuccessMarksDraft(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{outcome: OutcomeDraft}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // done
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0)) // depth gauge

	c.deliver(context.Background(), testJob())

	if len(tr.processing) != 1 || tr.processing[0] != 11 {
		t.Fatalf("first delivery must mark processing: %+v", tr.processing)
	}
	if len(tr.drafts) != 1 || tr.drafts[0] != 11 {
		t.Fatalf("success must mark draft: %+v", tr.drafts)
	}
}

func TestDeliverSkippedOutcome(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{outcome: OutcomeSkipped}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	c.deliver(context.Background(), testJob())

	if len(tr.skipped) != 1 || len(tr.drafts) != 0 {
		t.Fatalf("skipped outcome must mark skipped, not draft: %+v", tr)
	}
}

func TestDeliverAutoPublishedOutcome(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{outcome: OutcomeAutoPublished}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	c.deliver(context.Background(), testJob())

	if len(tr.autoPublished) != 1 || len(tr.drafts) != 0 {
		t.Fatalf("auto-published outcome must not create a draft: %+v", tr)
	}
}

func TestDeliverUnknownOutcomeFailsBothRows(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{outcome: Outcome("")}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // queue mark failed
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	c.deliver(context.Background(), testJob())

	if len(tr.drafts) != 0 {
		t.Fatalf("an outcome outside the contract must not draft: %+v", tr.drafts)
	}
	if msg, ok := tr.failed[11]; !ok || msg != "unknown outcome ''" {
		t.Fatalf("refresh row must fail with the bad outcome: %+v", tr.failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDeliverFirstFailureReschedules(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{err: errors.New("model timeout")}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // reschedule

	c.deliver(context.Background(), testJob())

	if len(tr.failed) != 0 {
		t.Fatalf("first failure must not fail the refresh row: %+v", tr.failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDeliverExhaustionFailsBothRows(t *testing.T) {
	tr := newFakeTracker()
	c, mock := newTestConsumer(t, &fakeHandler{err: errors.New("model timeout")}, tr)

	mock.ExpectExec(`UPDATE queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // queue mark failed
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	j := testJob()
	j.Attempts = 1 // second (and last) delivery

	c.deliver(context.Background(), j)

	if tr.failed[11] != "model timeout" {
		t.Fatalf("exhaustion must write the failure back: %+v", tr.failed)
	}
	if len(tr.processing) != 0 {
		t.Fatal("retries must not re-mark processing")
	}
}

func TestStartPanicsWithoutHandler(t *testing.T) {
	tr := newFakeTracker()
	c, _ := newTestConsumer(t, nil, tr)

	defer func() {
		if recover() == nil {
			t.Fatal("Start must panic without a handler")
		}
	}()
	c.Start(context.Background())
}
