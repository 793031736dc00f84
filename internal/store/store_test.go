package store

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNilStoreIsDisabled(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.RecordRun(ctx, &Run{Task: "t"}); !errors.Is(err, ErrDisabled) {
		t.Errorf("RecordRun: got %v, want ErrDisabled", err)
	}
	if _, err := s.ListRuns(ctx, 5); !errors.Is(err, ErrDisabled) {
		t.Errorf("ListRuns: got %v, want ErrDisabled", err)
	}
	if err := s.Migrate(ctx, "migrations"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Migrate: got %v, want ErrDisabled", err)
	}
	s.Close()
}

func TestNewBadDSN(t *testing.T) {
	if _, err := New(context.Background(), "postgres://u:p@127.0.0.1:1/x?connect_timeout=1", zap.NewNop()); err == nil {
		t.Fatal("expected connection error")
	}
}
