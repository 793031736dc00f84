package semcache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/config"
	"github.com/nidhogg/webpilot/internal/embedding"
	"github.com/nidhogg/webpilot/internal/vectorstore"
)

// Open builds the Cache selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Cache, error) {
	cc := cfg.Cache
	var backend Backend

	switch cc.Backend {
	case "langcache":
		lc, err := NewLangCache(LangCacheConfig{
			ServerURL: cc.LangCache.ServerURL,
			CacheID:   cc.LangCache.CacheID,
			APIKey:    cc.LangCache.APIKey,
		})
		if err != nil {
			return nil, err
		}
		backend = lc
	case "qdrant":
		client, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if err != nil {
			return nil, err
		}
		embedder := embedding.NewAPIProvider(embedding.Config{
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
		q, err := NewQdrant(ctx, client, embedder, cc.Collection)
		if err != nil {
			client.Close()
			return nil, err
		}
		backend = q
	case "memory", "":
		backend = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cc.Backend)
	}

	name := cc.Backend
	if name == "" {
		name = "memory"
	}
	logger.Info("semantic cache ready",
		zap.String("backend", name),
		zap.Float64("similarity_threshold", cc.SimilarityThreshold))
	return New(name, backend, cc.SimilarityThreshold, logger), nil
}
