package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/provider"
)

// Dispatcher runs one fresh Agent with its own browser session per task.
type Dispatcher struct {
	llm      provider.Provider
	launcher browser.Launcher
	maxSteps int
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. llm may be nil, in which case every
// dispatch fails with ErrNoProvider.
func NewDispatcher(llm provider.Provider, launcher browser.Launcher, maxSteps int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		llm:      llm,
		launcher: launcher,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// Dispatch runs task to completion. Any failure, including a panic inside the
// run, is returned as an error. On error the Result, when non-nil, holds the
// partial trace.
func (d *Dispatcher) Dispatch(ctx context.Context, task string) (res *Result, err error) {
	start := time.Now()
	log := d.logger.With(zap.String("task", truncateStr(task, 80)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("agent run panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("agent panic: %v", r)
		}
		if err != nil {
			log.Warn("agent run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		log.Info("agent run finished",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("steps", len(res.Steps)),
			zap.Int("tokens", res.Tokens))
	}()

	if d.llm == nil {
		return nil, ErrNoProvider
	}

	page, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("close browser session", zap.Error(cerr))
		}
	}()

	log.Info("agent run started")
	return New(task, d.llm, page, d.maxSteps, d.logger).Run(ctx)
}
