package semcache

import (
	"context"
	"testing"

	"github.com/nidhogg/webpilot/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }

type fakeIndex struct {
	ensured   string
	dimension uint64
	points    []map[string]any
	results   []*vectorstore.SearchResult
	minScore  float32
}

func (f *fakeIndex) EnsureCollection(_ context.Context, name string, dim uint64) error {
	f.ensured, f.dimension = name, dim
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, id string, _ []float32, payload map[string]any) error {
	if id == "" {
		panic("empty point id")
	}
	f.points = append(f.points, payload)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ uint64, minScore float32) ([]*vectorstore.SearchResult, error) {
	f.minScore = minScore
	return f.results, nil
}

func (f *fakeIndex) Close() error { return nil }

func TestQdrantBackend(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{}
	q, err := NewQdrant(ctx, idx, fakeEmbedder{}, "cache")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if idx.ensured != "cache" || idx.dimension != 2 {
		t.Errorf("collection not ensured: %q/%d", idx.ensured, idx.dimension)
	}

	if err := q.Set(ctx, "question", "answer"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(idx.points) != 1 || idx.points[0]["answer"] != "answer" || idx.points[0]["question"] != "question" {
		t.Errorf("unexpected payload %v", idx.points)
	}

	m, _ := q.Search(ctx, "question", 0.95)
	if m.Hit {
		t.Error("hit with no results")
	}
	if idx.minScore != 0.95 {
		t.Errorf("min score %v not forwarded", idx.minScore)
	}

	idx.results = []*vectorstore.SearchResult{{ID: "p", Score: 0.99, Payload: map[string]string{"answer": "answer", "question": "question"}}}
	m, _ = q.Search(ctx, "question", 0.95)
	if !m.Hit || m.Response != "answer" {
		t.Errorf("got %+v, want hit", m)
	}
}
