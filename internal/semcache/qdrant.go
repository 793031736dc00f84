package semcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/webpilot/internal/embedding"
	"github.com/nidhogg/webpilot/internal/vectorstore"
)

// vectorIndex is the subset of the Qdrant client the cache needs.
type vectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64, minScore float32) ([]*vectorstore.SearchResult, error)
	Close() error
}

// Qdrant is a Backend storing prompt embeddings in a Qdrant collection.
type Qdrant struct {
	index      vectorIndex
	embedder   embedding.Provider
	collection string
	now        func() time.Time
}

// NewQdrant ensures the collection exists and returns the backend.
func NewQdrant(ctx context.Context, index vectorIndex, embedder embedding.Provider, collection string) (*Qdrant, error) {
	if err := index.EnsureCollection(ctx, collection, uint64(embedder.Dimension())); err != nil {
		return nil, fmt.Errorf("qdrant cache: %w", err)
	}
	return &Qdrant{
		index:      index,
		embedder:   embedder,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Search implements Backend.
func (q *Qdrant) Search(ctx context.Context, prompt string, threshold float64) (Match, error) {
	vec, err := embedding.EmbedOne(ctx, q.embedder, prompt)
	if err != nil {
		return Miss, fmt.Errorf("qdrant cache: embed query: %w", err)
	}
	results, err := q.index.Search(ctx, q.collection, vec, 1, float32(threshold))
	if err != nil {
		return Miss, fmt.Errorf("qdrant cache: %w", err)
	}
	if len(results) == 0 {
		return Miss, nil
	}
	top := results[0]
	if float64(top.Score) < threshold {
		return Miss, nil
	}
	answer, ok := top.Payload["answer"]
	if !ok {
		return Miss, nil
	}
	return Match{Hit: true, Response: answer, Prompt: top.Payload["question"], Score: float64(top.Score)}, nil
}

// Set implements Backend.
func (q *Qdrant) Set(ctx context.Context, prompt, response string) error {
	vec, err := embedding.EmbedOne(ctx, q.embedder, prompt)
	if err != nil {
		return fmt.Errorf("qdrant cache: embed prompt: %w", err)
	}
	payload := map[string]any{
		"question":  prompt,
		"answer":    response,
		"timestamp": q.now().Unix(),
	}
	if err := q.index.Upsert(ctx, q.collection, uuid.NewString(), vec, payload); err != nil {
		return fmt.Errorf("qdrant cache: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (q *Qdrant) Close() error {
	return q.index.Close()
}
