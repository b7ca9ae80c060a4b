// internal/refresh/reaper_test.go
//
// Unit-test for the stuck-row sweep.
//
// Run: go test ./internal/refresh -v

package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestReaperSweep(t *testing.T) {
	store, mock := newMockStore(t)
	r := NewReaper(store, 2*time.Hour, 10*time.Minute, nil)

	mock.ExpectExec(`UPDATE refresh_job`).
		WithArgs(int64(7200)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	r.sweep(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestReaperSweepToleratesDBError(t *testing.T) {
	store, mock := newMockStore(t)
	r := NewReaper(store, 2*time.Hour, 10*time.Minute, nil)

	mock.ExpectExec(`UPDATE refresh_job`).
		WillReturnError(context.DeadlineExceeded)

	// Must log and return, never panic.
	r.sweep(context.Background())
}
