//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/kvstore"
	pgstore "github.com/nidhogg/webpilot/internal/store"
)

// Package-level shared state, set by TestMain and used by all tests.
var (
	testLogger  *zap.Logger
	testKV      *kvstore.Store
	testPGStore *pgstore.Store
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("webpilot_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { testcontainers.TerminateContainer(container) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { testcontainers.TerminateContainer(container) }
	return "redis://" + endpoint, cleanup, nil
}

// chromePath returns a local Chrome binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("Chrome not found (set CHROME_PATH)")
	return ""
}

// skipIfNoLLM skips the test unless a Gemini key is configured.
func skipIfNoLLM(t *testing.T) {
	t.Helper()
	if os.Getenv("GOOGLE_API_KEY") == "" {
		t.Skip("LLM provider not configured (set GOOGLE_API_KEY)")
	}
}
