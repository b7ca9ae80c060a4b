// internal/family/cache_test.go
//
// Unit-tests for the lazy family cache: single DB hit per alias, miss
// handling for suspended/unknown rows, and explicit invalidation.
//
// Run: go test ./internal/family -v

package family

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockCache(t *testing.T) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c := New(sqlx.NewDb(db, "mysql"), IdleTTL, MaxEntries)
	t.Cleanup(c.Close)
	return c, mock
}

func familyRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "alias", "name", "suspended_at", "deleted_at", "created_at",
	}).AddRow(7, "alternateur", "Alternateur", nil, nil, now)
}

func TestGetCachesSecondHit(t *testing.T) {
	c, mock := newMockCache(t)

	// Exactly one SELECT expected across two Gets.
	mock.ExpectQuery(`SELECT id, alias, name`).
		WithArgs("alternateur").
		WillReturnRows(familyRows())

	ctx := context.Background()
	first, err := c.Get(ctx, "alternateur")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	second, err := c.Get(ctx, "alternateur")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if first.ID != 7 || second.ID != 7 {
		t.Fatalf("unexpected records: %+v, %+v", first, second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("second hit went to the database: %v", err)
	}
}

func TestGetUnknownAlias(t *testing.T) {
	c, mock := newMockCache(t)

	mock.ExpectQuery(`SELECT id, alias, name`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := c.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	c, mock := newMockCache(t)

	mock.ExpectQuery(`SELECT id, alias, name`).
		WithArgs("alternateur").
		WillReturnRows(familyRows())
	mock.ExpectQuery(`SELECT id, alias, name`).
		WithArgs("alternateur").
		WillReturnRows(familyRows())

	ctx := context.Background()
	if _, err := c.Get(ctx, "alternateur"); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	c.Invalidate("alternateur")
	if _, err := c.Get(ctx, "alternateur"); err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFamilyID(t *testing.T) {
	c, mock := newMockCache(t)

	mock.ExpectQuery(`SELECT id, alias, name`).
		WithArgs("alternateur").
		WillReturnRows(familyRows())

	id, err := c.FamilyID(context.Background(), "alternateur")
	if err != nil || id != 7 {
		t.Fatalf("FamilyID = (%d, %v), want (7, nil)", id, err)
	}
}

func TestCloseStopsEvictor(t *testing.T) {
	c, _ := newMockCache(t)

	c.Close()
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("Close must release the evictor loop")
	}

	// Second Close (the test cleanup will be the third) must be a no-op.
	c.Close()
}
