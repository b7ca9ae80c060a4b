// internal/queue/queue_test.go
//
// Tests for the producer façade's subscriber fan-out: delivery on
// submit, detach on Unsubscribe, and the drop-when-full contract.
//
// Run: go test ./internal/queue -v

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "mysql"), Config{
		MaxAttempts: 2,
		BackoffBase: 30 * time.Second,
		Retention:   72 * time.Hour,
	}), mock
}

func TestSubscribeReceivesSubmittedJobs(t *testing.T) {
	q, mock := newTestQueue(t)

	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	mock.ExpectExec(`INSERT INTO queue_job`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1)) // depth gauge

	id, err := q.Enqueue(context.Background(),
		Payload{RefreshJobID: 11, FamilyID: 7, FamilyAlias: "alternateur", PageType: "pieces"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case j := <-ch:
		if j.ID != id || j.Payload.FamilyAlias != "alternateur" {
			t.Fatalf("subscriber saw the wrong job: %+v", j)
		}
	default:
		t.Fatal("subscriber must receive the submitted job")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	q, _ := newTestQueue(t)

	ch := q.Subscribe()
	q.Unsubscribe(ch)

	q.notify(&Job{ID: "qj_1"})
	if len(ch) != 0 {
		t.Fatalf("detached subscriber must not receive jobs: %d buffered", len(ch))
	}
}

func TestNotifyDropsWhenSubscriberFull(t *testing.T) {
	q, _ := newTestQueue(t)

	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	// Fill the buffer, then one more; notify must return instead of
	// blocking on the stalled subscriber.
	for i := 0; i <= SubscriberBuffer; i++ {
		q.notify(&Job{ID: "qj_1"})
	}
	if len(ch) != SubscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), SubscriberBuffer)
	}
}
