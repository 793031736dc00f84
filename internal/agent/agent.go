// Package agent runs an LLM-driven browser agent to completion for a single task.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/provider"
)

var (
	// ErrStepLimit is returned when the agent has not finished within its step ceiling.
	ErrStepLimit = errors.New("step limit reached")
	// ErrNoProvider is returned when no LLM is configured.
	ErrNoProvider = errors.New("no llm provider configured")
	// ErrGaveUp is returned when the model reports that the task cannot be completed.
	ErrGaveUp = errors.New("agent gave up")
	// ErrEmptyAnswer is returned when the model stops without an answer.
	ErrEmptyAnswer = errors.New("agent returned an empty answer")
)

// DefaultMaxSteps bounds the number of model rounds per run.
const DefaultMaxSteps = 25

const systemPrompt = `You are a web browsing agent controlling a real Chrome tab.
Complete the user's task by calling the browser tools one step at a time.
Start with navigate, then use read_page or list_links to observe the page before acting.
Prefer CSS selectors that are specific and stable.
When the task is complete, call done with a concise, self-contained answer in summary.
If the task cannot be completed, call done with success=false and explain why.`

// Agent is a single-use browser agent bound to one task and one page.
type Agent struct {
	task     string
	llm      provider.Provider
	tools    *ToolRegistry
	maxSteps int
	window   window
	logger   *zap.Logger

	finished bool
	summary  string
	success  bool
}

// New creates an Agent for task driving page.
func New(task string, llm provider.Provider, page browser.Page, maxSteps int, logger *zap.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	a := &Agent{
		task:     task,
		llm:      llm,
		tools:    NewToolRegistry(),
		maxSteps: maxSteps,
		window:   window{budget: DefaultContextTokens, logger: logger},
		logger:   logger,
	}
	RegisterBrowserTools(a.tools, page, func(summary string, success bool) {
		a.finished, a.summary, a.success = true, summary, success
	})
	return a
}

// Run drives the tool loop until the model finishes, stops calling tools, or
// the step ceiling is hit. The returned Result is non-nil even on error.
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()

	req := &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: a.task},
		},
		MaxTokens:  2048,
		Tools:      a.tools.Definitions(),
		ToolChoice: "auto",
	}

	for round := 1; round <= a.maxSteps; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		req.Messages = a.window.fit(req.Messages)
		resp, err := a.llm.Chat(ctx, req)
		if err != nil {
			return res, fmt.Errorf("round %d: llm: %w", round, err)
		}
		res.Tokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			if answer == "" {
				return res, ErrEmptyAnswer
			}
			res.Summary, res.Success = answer, true
			return res, nil
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			obs, toolErr := a.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			res.record(tc.Function.Name, tc.Function.Arguments, obs, toolErr)
			if toolErr != nil {
				obs = "error: " + toolErr.Error()
			}
			a.logger.Debug("agent step",
				zap.Int("round", round),
				zap.String("tool", tc.Function.Name),
				zap.Bool("ok", toolErr == nil))
			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Name:       tc.Function.Name,
				Content:    obs,
				ToolCallID: tc.ID,
			})
			if a.finished {
				break
			}
		}

		if a.finished {
			res.Summary, res.Success = a.summary, a.success
			if !a.success {
				return res, fmt.Errorf("%w: %s", ErrGaveUp, a.summary)
			}
			if strings.TrimSpace(a.summary) == "" {
				res.Success = false
				return res, ErrEmptyAnswer
			}
			return res, nil
		}
	}
	return res, ErrStepLimit
}
