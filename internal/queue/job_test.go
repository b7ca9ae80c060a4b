// internal/queue/job_test.go
//
// Unit-tests for the queue row model and the backoff schedule.
//
// Run: go test ./internal/queue -v

package queue

import (
	"strings"
	"testing"
	"time"
)

func TestNextBackoff(t *testing.T) {
	base := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{0, 30 * time.Second}, // clamped
	}
	for _, c := range cases {
		if got := NextBackoff(base, c.attempt); got != c.want {
			t.Errorf("NextBackoff(30s, %d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestNewJob(t *testing.T) {
	p := Payload{RefreshJobID: 11, FamilyID: 7, FamilyAlias: "alternateur", PageType: "pieces"}
	j := NewJob(p, 2)

	if !strings.HasPrefix(j.ID, "qj_") {
		t.Fatalf("id %q lacks qj_ prefix", j.ID)
	}
	if j.State != StateWaiting {
		t.Fatalf("state = %s, want waiting", j.State)
	}
	if j.MaxAttempts != 2 || j.Attempts != 0 {
		t.Fatalf("attempts = %d/%d, want 0/2", j.Attempts, j.MaxAttempts)
	}
	if j.RunAt.After(time.Now()) {
		t.Fatal("new jobs must be due immediately")
	}
	if j.Payload != p {
		t.Fatalf("payload mismatch: %+v", j.Payload)
	}
}
