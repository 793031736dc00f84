// Package orchestrator puts the semantic cache in front of the browser agent.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nidhogg/webpilot/internal/agent"
	"github.com/nidhogg/webpilot/internal/semcache"
	"github.com/nidhogg/webpilot/internal/store"
)

// Cache is the best-effort semantic cache.
type Cache interface {
	Lookup(ctx context.Context, query string) (string, bool)
	Store(ctx context.Context, query, response string) bool
}

// Dispatcher runs the browser agent for one task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task string) (*agent.Result, error)
}

// History records successful exchanges per user.
type History interface {
	AppendHistory(ctx context.Context, userID, task, result string) bool
}

// RunLog persists one row per handled request.
type RunLog interface {
	RecordRun(ctx context.Context, r *store.Run) error
}

// Config tunes the orchestrator.
type Config struct {
	// DedupeInflight makes concurrent misses for the same query share one dispatch.
	DedupeInflight bool
}

// Request is one inbound chat message.
type Request struct {
	Query  string
	UserID string
}

// Outcome is the tagged result of handling a Request.
type Outcome struct {
	Message  string        `json:"message"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	CacheHit bool          `json:"cache_hit"`
	Result   *agent.Result `json:"-"`
}

// Orchestrator implements cache-aside dispatch.
type Orchestrator struct {
	cache      Cache
	dispatcher Dispatcher
	history    History
	runs       RunLog
	cfg        Config
	group      singleflight.Group
	logger     *zap.Logger
}

// New creates an Orchestrator. History and run logging are off until set.
func New(cache Cache, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cache:      cache,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetHistory enables per-user history on successful outcomes.
func (o *Orchestrator) SetHistory(h History) { o.history = h }

// SetRunLog enables the run log.
func (o *Orchestrator) SetRunLog(r RunLog) { o.runs = r }

// Handle answers req from the cache when possible and otherwise runs the
// agent, storing only successful results.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Outcome {
	start := time.Now()
	log := o.logger.With(zap.String("query", preview(req.Query)))

	var out Outcome
	if cached, ok := o.cache.Lookup(ctx, req.Query); ok && !semcache.IsMissSentinel(cached) {
		log.Info("served from cache")
		out = Outcome{Message: cached, Success: true, CacheHit: true}
	} else {
		res, err := o.dispatch(ctx, req.Query)
		out = outcomeOf(res, err)
		log.Info("served by agent",
			zap.Bool("success", out.Success),
			zap.Duration("elapsed", time.Since(start)))
	}

	if out.Success && req.UserID != "" && o.history != nil {
		o.history.AppendHistory(ctx, req.UserID, req.Query, out.Message)
	}
	o.recordRun(ctx, req.Query, out, time.Since(start))
	return out
}

// Execute runs the agent for task without consulting or filling the cache.
func (o *Orchestrator) Execute(ctx context.Context, task string) Outcome {
	start := time.Now()
	res, err := o.dispatcher.Dispatch(ctx, task)
	out := outcomeOf(res, err)
	o.recordRun(ctx, task, out, time.Since(start))
	return out
}

// dispatch runs the agent and stores a successful result. With DedupeInflight,
// identical concurrent queries share one run; the shared run is detached from
// any single caller's cancellation.
func (o *Orchestrator) dispatch(ctx context.Context, query string) (*agent.Result, error) {
	run := func(ctx context.Context) (*agent.Result, error) {
		res, err := o.dispatcher.Dispatch(ctx, query)
		if err != nil {
			return res, err
		}
		if res == nil {
			return nil, errNoResult
		}
		o.cache.Store(ctx, query, res.String())
		return res, nil
	}

	if !o.cfg.DedupeInflight {
		return run(ctx)
	}

	detached := context.WithoutCancel(ctx)
	ch := o.group.DoChan(query, func() (any, error) {
		return run(detached)
	})
	select {
	case r := <-ch:
		if r.Shared {
			o.logger.Debug("shared in-flight dispatch", zap.String("query", preview(query)))
		}
		res, _ := r.Val.(*agent.Result)
		return res, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) recordRun(ctx context.Context, task string, out Outcome, elapsed time.Duration) {
	if o.runs == nil {
		return
	}
	r := &store.Run{
		Task:     task,
		Success:  out.Success,
		Error:    out.Error,
		CacheHit: out.CacheHit,
		Duration: elapsed,
	}
	if out.Success {
		r.Summary = out.Message
	}
	if out.Result != nil {
		r.Steps = len(out.Result.Steps)
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordRunTimeout)
	defer cancel()
	if err := o.runs.RecordRun(rctx, r); err != nil {
		o.logger.Warn("record run failed", zap.Error(err))
	}
}

// recordRunTimeout bounds the run-log write that every response waits on.
const recordRunTimeout = 2 * time.Second

var errNoResult = errors.New("agent returned no result")

func outcomeOf(res *agent.Result, err error) Outcome {
	if err == nil && res == nil {
		err = errNoResult
	}
	if err != nil {
		return Outcome{
			Message: "Sorry, I encountered an error: " + err.Error(),
			Error:   err.Error(),
			Result:  res,
		}
	}
	return Outcome{Message: res.String(), Success: true, Result: res}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
