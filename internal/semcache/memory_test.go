package semcache

import (
	"context"
	"testing"
)

func TestMemoryThreshold(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Set(ctx, "find the top post on show hn", "A")

	if got, _ := m.Search(ctx, "find the top post on hacker news", 1); got.Hit {
		t.Errorf("threshold 1 matched a different prompt: %+v", got)
	}
	got, _ := m.Search(ctx, "find the top post on hacker news", 0.5)
	if !got.Hit || got.Response != "A" {
		t.Errorf("got %+v, want partial match at 0.5", got)
	}
	if got.Score <= 0.5 || got.Score >= 1 {
		t.Errorf("score %v out of range", got.Score)
	}
}

func TestMemorySetReplaces(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Set(ctx, "Hello, World", "old")
	m.Set(ctx, "hello world", "new")

	if m.Len() != 1 {
		t.Fatalf("got %d entries, want 1", m.Len())
	}
	got, _ := m.Search(ctx, "HELLO WORLD!", 1)
	if got.Response != "new" {
		t.Errorf("got %q, want new", got.Response)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	m := &Memory{limit: 2}
	ctx := context.Background()
	m.Set(ctx, "first task", "1")
	m.Set(ctx, "second task", "2")
	m.Set(ctx, "third task", "3")

	if m.Len() != 2 {
		t.Fatalf("got %d entries, want 2", m.Len())
	}
	if got, _ := m.Search(ctx, "first task", 1); got.Hit {
		t.Error("oldest entry survived eviction")
	}
	if got, _ := m.Search(ctx, "third task", 1); got.Response != "3" {
		t.Errorf("newest entry missing: %+v", got)
	}
	if NewMemory().limit != DefaultMemoryEntries {
		t.Error("NewMemory is unbounded")
	}
}
