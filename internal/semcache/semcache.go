// Package semcache is the semantic cache in front of the browser agent.
//
// A Backend answers similarity searches; Cache wraps it with the best-effort
// contract the request path relies on: lookups degrade to a miss and stores
// report false instead of returning errors.
package semcache

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("semcache: unknown backend")

// Match is the decoded outcome of a similarity search.
type Match struct {
	Hit      bool
	Response string
	Prompt   string
	Score    float64
}

// Miss is the zero Match.
var Miss = Match{}

// Backend is a similarity-search service holding prompt/response pairs.
type Backend interface {
	Search(ctx context.Context, prompt string, threshold float64) (Match, error)
	Set(ctx context.Context, prompt, response string) error
}

// IsMissSentinel reports whether a cached payload should be treated as absent.
func IsMissSentinel(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || t == "[]"
}

// Stats counts cache traffic since startup.
type Stats struct {
	Backend  string `json:"backend"`
	Lookups  int64  `json:"lookups"`
	Hits     int64  `json:"hits"`
	Misses   int64  `json:"misses"`
	Stores   int64  `json:"stores"`
	Errors   int64  `json:"errors"`
	Failures int64  `json:"store_failures"`
}

// Cache is the best-effort adapter over a Backend.
type Cache struct {
	backend   Backend
	name      string
	threshold float64
	logger    *zap.Logger

	lookups  atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	stores   atomic.Int64
	errs     atomic.Int64
	failures atomic.Int64
}

// New wraps backend. threshold is the minimum similarity (0..1) counted as a hit.
func New(name string, backend Backend, threshold float64, logger *zap.Logger) *Cache {
	return &Cache{
		backend:   backend,
		name:      name,
		threshold: threshold,
		logger:    logger,
	}
}

// Lookup returns the cached response for a sufficiently similar query.
// Backend errors are logged and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, query string) (string, bool) {
	c.lookups.Add(1)
	m, err := c.backend.Search(ctx, query, c.threshold)
	if err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		c.logger.Warn("cache lookup failed, treating as miss",
			zap.String("query", preview(query)), zap.Error(err))
		return "", false
	}
	if !m.Hit || IsMissSentinel(m.Response) {
		c.misses.Add(1)
		c.logger.Debug("cache miss", zap.String("query", preview(query)))
		return "", false
	}
	c.hits.Add(1)
	c.logger.Info("cache hit",
		zap.String("query", preview(query)),
		zap.Float64("score", m.Score))
	return m.Response, true
}

// Store saves query/response. It reports whether the backend accepted it.
func (c *Cache) Store(ctx context.Context, query, response string) bool {
	if err := c.backend.Set(ctx, query, response); err != nil {
		c.failures.Add(1)
		c.logger.Warn("cache store failed", zap.String("query", preview(query)), zap.Error(err))
		return false
	}
	c.stores.Add(1)
	c.logger.Debug("cached response", zap.String("query", preview(query)))
	return true
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Backend:  c.name,
		Lookups:  c.lookups.Load(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Stores:   c.stores.Load(),
		Errors:   c.errs.Load(),
		Failures: c.failures.Load(),
	}
}

// Close releases the backend if it holds resources.
func (c *Cache) Close() error {
	if cl, ok := c.backend.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
