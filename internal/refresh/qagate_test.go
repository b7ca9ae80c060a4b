// internal/refresh/qagate_test.go
//
// Unit-tests for the protected-field gate: GO on identical fields,
// BLOCK with per-field drift details otherwise.
//
// Run: go test ./internal/refresh -v

package refresh

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var gateColumns = []string{
	"family_id", "page_type",
	"base_title", "cur_title",
	"base_heading", "cur_heading",
	"base_canonical", "cur_canonical",
	"base_meta_description", "cur_meta_description",
}

func newMockGate(t *testing.T) (*Gate, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGate(sqlx.NewDb(db, "mysql"), nil), mock
}

func TestGateVerdictGo(t *testing.T) {
	gate, mock := newMockGate(t)

	mock.ExpectQuery(`SELECT b.family_id`).
		WillReturnRows(sqlmock.NewRows(gateColumns).
			AddRow(7, "pieces",
				"Alternateur", "Alternateur",
				"Tout savoir", "Tout savoir",
				"/p/alternateur", "/p/alternateur",
				"Guide alternateur", "Guide alternateur"))

	res, err := gate.CheckProtectedFields(context.Background())
	if err != nil {
		t.Fatalf("CheckProtectedFields error: %v", err)
	}
	if res.Verdict != VerdictGo || res.MutationCount != 0 {
		t.Fatalf("want GO with no mutations, got %+v", res)
	}
}

func TestGateVerdictBlock(t *testing.T) {
	gate, mock := newMockGate(t)

	// Title and canonical drifted; heading and meta are intact.
	mock.ExpectQuery(`SELECT b.family_id`).
		WillReturnRows(sqlmock.NewRows(gateColumns).
			AddRow(7, "pieces",
				"Alternateur", "Alternateur pas cher !!",
				"Tout savoir", "Tout savoir",
				"/p/alternateur", "/pieces/alternateur-promo",
				"Guide alternateur", "Guide alternateur"))

	res, err := gate.CheckProtectedFields(context.Background())
	if err != nil {
		t.Fatalf("CheckProtectedFields error: %v", err)
	}
	if res.Verdict != VerdictBlock {
		t.Fatalf("want BLOCK, got %s", res.Verdict)
	}
	if res.MutationCount != 2 || len(res.Details) != 2 {
		t.Fatalf("want 2 mutations, got %+v", res)
	}
	if res.Details[0].Field != "title" || res.Details[1].Field != "canonical_url" {
		t.Fatalf("unexpected fields: %+v", res.Details)
	}
}

func TestGateNoPagesIsGo(t *testing.T) {
	gate, mock := newMockGate(t)

	mock.ExpectQuery(`SELECT b.family_id`).
		WillReturnRows(sqlmock.NewRows(gateColumns))

	res, err := gate.CheckProtectedFields(context.Background())
	if err != nil {
		t.Fatalf("CheckProtectedFields error: %v", err)
	}
	if res.Verdict != VerdictGo {
		t.Fatalf("no pages must be GO, got %s", res.Verdict)
	}
}
