package agent

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/provider"
)

const (
	// DefaultContextTokens is the estimated prompt size the loop tries to stay under.
	DefaultContextTokens = 24000

	// The last keepRecentObservations tool results are never shortened.
	keepRecentObservations = 2
	maxStaleObservation    = 500
)

// window keeps the running conversation inside a token budget by shortening
// stale page observations, oldest first. System, user and assistant turns are
// left intact.
type window struct {
	budget int
	logger *zap.Logger
}

func (w window) fit(msgs []provider.Message) []provider.Message {
	total := estimateTokens(msgs)
	if w.budget <= 0 || total <= w.budget {
		return msgs
	}

	// Only tool results before cut are eligible; with fewer than
	// keepRecentObservations results none are.
	recent := 0
	cut := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "tool" {
			recent++
			if recent == keepRecentObservations {
				cut = i
				break
			}
		}
	}

	before := total
	for i := 0; i < cut && total > w.budget; i++ {
		m := &msgs[i]
		if m.Role != "tool" || utf8.RuneCountInString(m.Content) <= maxStaleObservation {
			continue
		}
		old := estimateTokensStr(m.Content)
		m.Content = browser.Clip(m.Content, maxStaleObservation)
		total -= old - estimateTokensStr(m.Content)
	}
	w.logger.Debug("compressed agent context",
		zap.Int("before", before),
		zap.Int("after", total),
		zap.Int("budget", w.budget))
	return msgs
}

func estimateTokens(msgs []provider.Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokensStr(m.Content)
		for _, tc := range m.ToolCalls {
			total += estimateTokensStr(tc.Function.Arguments)
		}
	}
	return total
}

// estimateTokensStr is a rough ~4 bytes per token heuristic.
func estimateTokensStr(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
