// internal/knowledge/checker_test.go
//
// Unit-tests for the knowledge-file existence check.
//
// Run: go test ./internal/knowledge -v

package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "gammes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "gammes", "alternateur.md"),
		[]byte("# Alternateur\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(base)

	if !c.Exists("alternateur") {
		t.Error("alternateur.md is on disk, Exists must be true")
	}
	if c.Exists("demarreur") {
		t.Error("missing file must report false")
	}
}

func TestExistsBadBaseDir(t *testing.T) {
	c := NewChecker("/nonexistent/refinery-test")
	if c.Exists("alternateur") {
		t.Error("unreadable base dir must report false, not panic")
	}
}

func TestPath(t *testing.T) {
	c := NewChecker("/srv/knowledge")
	want := filepath.Join("/srv/knowledge", "gammes", "alternateur.md")
	if got := c.Path("alternateur"); got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}
