package semcache

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type failingBackend struct{}

func (failingBackend) Search(context.Context, string, float64) (Match, error) {
	return Miss, errors.New("connection refused")
}

func (failingBackend) Set(context.Context, string, string) error {
	return errors.New("connection refused")
}

type fixedBackend struct{ m Match }

func (f fixedBackend) Search(context.Context, string, float64) (Match, error) { return f.m, nil }
func (f fixedBackend) Set(context.Context, string, string) error              { return nil }

func TestCacheDegradesOnBackendError(t *testing.T) {
	c := New("broken", failingBackend{}, 1, zap.NewNop())
	ctx := context.Background()

	if resp, ok := c.Lookup(ctx, "anything"); ok || resp != "" {
		t.Errorf("got (%q, %v), want miss", resp, ok)
	}
	if c.Store(ctx, "anything", "value") {
		t.Error("store on broken backend reported success")
	}

	s := c.Stats()
	if s.Lookups != 1 || s.Misses != 1 || s.Errors != 1 || s.Failures != 1 || s.Stores != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestCacheTreatsSentinelAsMiss(t *testing.T) {
	for _, resp := range []string{"", "[]", "  [] "} {
		c := New("fixed", fixedBackend{Match{Hit: true, Response: resp}}, 1, zap.NewNop())
		if _, ok := c.Lookup(context.Background(), "q"); ok {
			t.Errorf("response %q counted as hit", resp)
		}
	}
}

func TestCacheStoreThenLookup(t *testing.T) {
	c := New("memory", NewMemory(), 1, zap.NewNop())
	ctx := context.Background()

	if _, ok := c.Lookup(ctx, "Find the number 1 post on Show HN"); ok {
		t.Fatal("hit on empty cache")
	}
	if !c.Store(ctx, "Find the number 1 post on Show HN", "summary") {
		t.Fatal("store failed")
	}
	resp, ok := c.Lookup(ctx, "  find the NUMBER 1 post on show hn ")
	if !ok || resp != "summary" {
		t.Errorf("got (%q, %v), want (summary, true)", resp, ok)
	}

	s := c.Stats()
	if s.Backend != "memory" || s.Hits != 1 || s.Misses != 1 || s.Stores != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestIsMissSentinel(t *testing.T) {
	if !IsMissSentinel("") || !IsMissSentinel("[]") || IsMissSentinel("x") {
		t.Error("sentinel detection wrong")
	}
}
