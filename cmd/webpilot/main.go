package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/agent"
	"github.com/nidhogg/webpilot/internal/api"
	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/config"
	"github.com/nidhogg/webpilot/internal/kvstore"
	"github.com/nidhogg/webpilot/internal/orchestrator"
	"github.com/nidhogg/webpilot/internal/provider"
	"github.com/nidhogg/webpilot/internal/semcache"
	pgstore "github.com/nidhogg/webpilot/internal/store"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/server.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting WebPilot...", zap.String("config", cfgPath))
	ctx := context.Background()

	// LLM driving the browser agent
	var llm provider.Provider
	if router, err := provider.FromConfig(ctx, cfg.LLM, logger); err != nil {
		logger.Warn("LLM unavailable, agent requests will fail", zap.Error(err))
	} else {
		llm = router
	}

	launcher := browser.NewChromeLauncher(browser.Config{
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		UserAgent:    cfg.Browser.UserAgent,
		MaxPageChars: cfg.Browser.MaxPageChars,
	}, logger)
	dispatcher := agent.NewDispatcher(llm, launcher, cfg.Agent.MaxSteps, logger)

	// Semantic cache
	cache, err := semcache.Open(ctx, cfg, logger)
	if err != nil {
		logger.Warn("semantic cache unavailable, falling back to in-process cache",
			zap.String("backend", cfg.Cache.Backend), zap.Error(err))
		cache = semcache.New("memory", semcache.NewMemory(), cfg.Cache.SimilarityThreshold, logger)
	}

	orch := orchestrator.New(cache, dispatcher, orchestrator.Config{
		DedupeInflight: cfg.Cache.DedupeInflight,
	}, logger)

	// Long-term memory and conversation history
	var memory api.MemoryStore
	var kv *kvstore.Store
	if cfg.Database.Redis.URL != "" {
		s, kvErr := kvstore.New(cfg.Database.Redis.URL, logger)
		if kvErr != nil {
			logger.Warn("Redis unavailable, running without memory", zap.Error(kvErr))
		} else {
			kv = s
			memory = s
			orch.SetHistory(s)
		}
	}

	// Run log
	var runs api.RunLister
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without run log", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, migrationsDir()); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			runs = ps
			orch.SetRunLog(ps)
		}
	}

	handler := api.NewHandler(orch, memory, cache, runs, api.Options{
		DefaultTask: cfg.Agent.DefaultTask,
		CORSOrigin:  cfg.Server.CORSOrigin,
	}, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("WebPilot listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down WebPilot...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := cache.Close(); err != nil {
		logger.Warn("close semantic cache", zap.Error(err))
	}
	if kv != nil {
		kv.Close()
	}
	pgStore.Close()
}

func migrationsDir() string {
	if d := os.Getenv("MIGRATIONS_DIR"); d != "" {
		return d
	}
	return "migrations"
}

// newLogger builds a development logger unless a non-debug level is set.
func newLogger(level string) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if level != "" && level != "debug" {
		zc = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil && level != "" {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}
