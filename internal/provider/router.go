package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/config"
)

// ErrNoProvider is returned when the router has nothing registered.
var ErrNoProvider = errors.New("no provider available")

// Router sends requests to a default provider and walks a fallback chain
// when it errors. Router itself satisfies Provider.
type Router struct {
	providers map[string]Provider
	fallbacks []string // provider IDs tried in order after the default
	defaults  string   // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider to the router. The first one registered becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// SetFallbacks configures the fallback chain.
func (r *Router) SetFallbacks(providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = providerIDs
}

func (r *Router) ID() string   { return "router" }
func (r *Router) Name() string { return "Router(" + r.DefaultID() + ")" }

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Chat sends a chat request through the default provider, then the fallbacks.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary, ok := r.providers[r.defaults]
	if !ok {
		return nil, ErrNoProvider
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("provider", r.defaults), zap.Error(err))

	for _, fbID := range r.fallbacks {
		fb, ok := r.providers[fbID]
		if !ok || fbID == r.defaults {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed: %w", err)
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// FromConfig builds a Router with cfg as the default provider and
// cfg.Fallbacks as the chain. Providers that fail to construct are skipped;
// an error is returned only when none could be built.
func FromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	r := NewRouter(logger)
	var chain []string

	all := append([]config.LLMConfig{cfg}, cfg.Fallbacks...)
	var firstErr error
	for i, lc := range all {
		id := fmt.Sprintf("%s-%d", lc.Provider, i)
		p, err := build(ctx, id, lc, logger)
		if err != nil {
			logger.Warn("provider unavailable", zap.String("id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.Register(p)
		chain = append(chain, id)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, firstErr)
	}
	r.SetFallbacks(chain[1:])
	return r, nil
}

func build(ctx context.Context, id string, lc config.LLMConfig, logger *zap.Logger) (Provider, error) {
	pc := ProviderConfig{
		ID:       id,
		Type:     lc.Provider,
		Name:     lc.Provider + "/" + lc.Model,
		Endpoint: lc.Endpoint,
		APIKey:   lc.APIKey,
		Model:    lc.Model,
		Extra:    lc.Extra,
	}
	switch lc.Provider {
	case "gemini", "":
		return NewGeminiProvider(ctx, pc, logger)
	case "openai":
		return NewOpenAIProvider(pc, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", lc.Provider)
	}
}
