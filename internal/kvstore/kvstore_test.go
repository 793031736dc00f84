package kvstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New("redis://"+mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// newBrokenStore points at a port nobody listens on.
func newBrokenStore(t *testing.T) *Store {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewWithClient(rdb, zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if !s.StoreMemory(ctx, "alice", "city", "Lisbon") {
		t.Fatal("store failed")
	}
	// Last write wins.
	s.StoreMemory(ctx, "alice", "city", "Porto")
	s.StoreMemory(ctx, "alice", "lang", "pt")

	v, ok := s.GetMemory(ctx, "alice", "city")
	if !ok || v != "Porto" {
		t.Errorf("got %q/%v, want Porto/true", v, ok)
	}

	all := s.GetAllMemories(ctx, "alice")
	if len(all) != 2 || all["lang"] != "pt" {
		t.Errorf("unexpected memories: %v", all)
	}

	if _, ok := s.GetMemory(ctx, "alice", "missing"); ok {
		t.Error("expected missing key to report false")
	}
	if got := s.GetAllMemories(ctx, "bob"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil map for unknown user, got %v", got)
	}
}

func TestHistoryCappedToMostRecent(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	const n = 130
	for i := 0; i < n; i++ {
		if !s.AppendHistory(ctx, "u1", fmt.Sprintf("task-%d", i), fmt.Sprintf("result-%d", i)) {
			t.Fatalf("append %d failed", i)
		}
	}

	stored, err := mr.List(historyPrefix + "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != HistoryCap {
		t.Fatalf("list length %d, want %d", len(stored), HistoryCap)
	}

	entries := s.GetHistory(ctx, "u1", HistoryCap)
	if len(entries) != HistoryCap {
		t.Fatalf("got %d entries, want %d", len(entries), HistoryCap)
	}
	// Oldest surviving entry is n-HistoryCap, newest is n-1, in append order.
	if entries[0].Task != fmt.Sprintf("task-%d", n-HistoryCap) {
		t.Errorf("first entry %q", entries[0].Task)
	}
	if entries[HistoryCap-1].Task != fmt.Sprintf("task-%d", n-1) {
		t.Errorf("last entry %q", entries[HistoryCap-1].Task)
	}
}

func TestGetHistoryDefaultLimit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		s.AppendHistory(ctx, "u2", fmt.Sprintf("t%d", i), "r")
	}

	got := s.GetHistory(ctx, "u2", 0)
	if len(got) != DefaultHistoryLimit {
		t.Fatalf("got %d entries, want %d", len(got), DefaultHistoryLimit)
	}
	if got[len(got)-1].Task != "t14" {
		t.Errorf("newest entry %q, want t14", got[len(got)-1].Task)
	}
}

func TestGetHistorySkipsGarbage(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	s.AppendHistory(ctx, "u3", "good", "ok")
	mr.RPush(historyPrefix+"u3", "not-json")

	got := s.GetHistory(ctx, "u3", 5)
	if len(got) != 1 || got[0].Task != "good" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestFailuresDegradeToDefaults(t *testing.T) {
	s := newBrokenStore(t)
	ctx := context.Background()

	if s.StoreMemory(ctx, "u", "k", "v") {
		t.Error("StoreMemory should report false")
	}
	if v, ok := s.GetMemory(ctx, "u", "k"); ok || v != "" {
		t.Errorf("GetMemory got %q/%v", v, ok)
	}
	if m := s.GetAllMemories(ctx, "u"); m == nil || len(m) != 0 {
		t.Errorf("GetAllMemories got %v", m)
	}
	if s.AppendHistory(ctx, "u", "t", "r") {
		t.Error("AppendHistory should report false")
	}
	if h := s.GetHistory(ctx, "u", 10); h == nil || len(h) != 0 {
		t.Errorf("GetHistory got %v", h)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not a url", zap.NewNop()); err == nil {
		t.Fatal("expected parse error")
	}
}
