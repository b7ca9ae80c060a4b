// internal/refresh/resolver_test.go
//
// Unit-tests for the availability-driven archetype resolver using fake
// checkers.  The resolver must be additive (signals union, never mask)
// and must fail open on checker errors.
//
// Run: go test ./internal/refresh -v

package refresh

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeSignals struct {
	guide       bool
	guideErr    error
	advisory    bool
	advisoryErr error
}

func (f *fakeSignals) GuideExists(context.Context, int64) (bool, error) {
	return f.guide, f.guideErr
}

func (f *fakeSignals) AdvisoryExists(context.Context, int64) (bool, error) {
	return f.advisory, f.advisoryErr
}

type fakeKnowledge bool

func (f fakeKnowledge) Exists(string) bool { return bool(f) }

func TestResolveAllSignals(t *testing.T) {
	s := &fakeSignals{guide: true, advisory: true}
	r := NewResolver(s, s, fakeKnowledge(true), nil)

	got := r.Resolve(context.Background(), 7, "alternateur")
	want := []PageType{PagePieces, PageGuideAchat, PageConseils, PageReference}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveGuideOnly(t *testing.T) {
	s := &fakeSignals{guide: true}
	r := NewResolver(s, s, fakeKnowledge(false), nil)

	got := r.Resolve(context.Background(), 7, "alternateur")
	want := []PageType{PagePieces, PageGuideAchat}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveNoSignals(t *testing.T) {
	s := &fakeSignals{}
	r := NewResolver(s, s, fakeKnowledge(false), nil)

	if got := r.Resolve(context.Background(), 7, "alternateur"); len(got) != 0 {
		t.Fatalf("expected no archetypes, got %v", got)
	}
}

func TestResolveFailsOpenOnCheckerError(t *testing.T) {
	// A broken guide lookup must not suppress the other signals.
	s := &fakeSignals{guideErr: errors.New("db down"), advisory: true}
	r := NewResolver(s, s, fakeKnowledge(false), nil)

	got := r.Resolve(context.Background(), 7, "alternateur")
	want := []PageType{PageConseils}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
