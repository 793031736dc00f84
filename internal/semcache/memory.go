package semcache

import (
	"context"
	"math"
	"strings"
	"sync"
)

// DefaultMemoryEntries caps the in-process backend.
const DefaultMemoryEntries = 1000

// Memory is an in-process Backend scoring prompts by token overlap.
// A threshold of 1 only matches prompts with the same token set, which makes
// matching insensitive to case, punctuation and spacing.
//
// Search and Set scan every entry. Once the cap is reached the oldest entry is
// evicted, so memory stays bounded in a long-running server.
type Memory struct {
	mu      sync.RWMutex
	entries []memoryEntry
	limit   int
}

type memoryEntry struct {
	prompt   string
	tokens   map[string]bool
	response string
}

// NewMemory returns an empty in-process backend holding at most
// DefaultMemoryEntries entries.
func NewMemory() *Memory {
	return &Memory{limit: DefaultMemoryEntries}
}

// Search implements Backend.
func (m *Memory) Search(_ context.Context, prompt string, threshold float64) (Match, error) {
	q := tokenSet(prompt)

	m.mu.RLock()
	defer m.mu.RUnlock()

	best := Miss
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		score := jaccard(q, e.tokens)
		if score >= threshold && score > best.Score {
			best = Match{Hit: true, Response: e.response, Prompt: e.prompt, Score: score}
		}
	}
	return best, nil
}

// Set implements Backend. An entry with the same token set is replaced.
func (m *Memory) Set(_ context.Context, prompt, response string) error {
	tokens := tokenSet(prompt)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if jaccard(tokens, m.entries[i].tokens) == 1 {
			m.entries[i].prompt = prompt
			m.entries[i].response = response
			return nil
		}
	}
	if m.limit > 0 && len(m.entries) >= m.limit {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, memoryEntry{prompt: prompt, tokens: tokens, response: response})
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var overlap int
	for w := range a {
		if b[w] {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	return float64(overlap) / math.Max(float64(union), 1)
}
