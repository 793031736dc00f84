package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/webpilot/internal/browser"
)

// DoneTool ends the run.
const DoneTool = "done"

// RegisterBrowserTools adds the page-driving tools to reg. onDone receives the
// arguments of the done tool.
func RegisterBrowserTools(reg *ToolRegistry, page browser.Page, onDone func(summary string, success bool)) {
	reg.Register(function("navigate",
		"Open a URL in the browser tab.",
		map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute http(s) URL"},
		}, "url"),
		func(ctx context.Context, args string) (string, error) {
			var in struct {
				URL string `json:"url"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			if err := page.Navigate(ctx, in.URL); err != nil {
				return "", err
			}
			return describeLocation(ctx, page, "Loaded")
		})

	reg.Register(function("click",
		"Click the first visible element matching a CSS selector.",
		map[string]any{
			"selector": map[string]any{"type": "string", "description": "CSS selector"},
		}, "selector"),
		func(ctx context.Context, args string) (string, error) {
			var in struct {
				Selector string `json:"selector"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			if err := page.Click(ctx, in.Selector); err != nil {
				return "", err
			}
			return describeLocation(ctx, page, "Clicked, now at")
		})

	reg.Register(function("type_text",
		"Replace the text of an input field, optionally pressing Enter afterwards.",
		map[string]any{
			"selector": map[string]any{"type": "string", "description": "CSS selector of the input"},
			"text":     map[string]any{"type": "string"},
			"submit":   map[string]any{"type": "boolean", "description": "Press Enter after typing"},
		}, "selector", "text"),
		func(ctx context.Context, args string) (string, error) {
			var in struct {
				Selector string `json:"selector"`
				Text     string `json:"text"`
				Submit   bool   `json:"submit"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			if err := page.TypeText(ctx, in.Selector, in.Text, in.Submit); err != nil {
				return "", err
			}
			if in.Submit {
				return describeLocation(ctx, page, "Submitted, now at")
			}
			return fmt.Sprintf("Typed %d characters into %s", len([]rune(in.Text)), in.Selector), nil
		})

	reg.Register(function("read_page",
		"Return the visible text of the current page.",
		map[string]any{}),
		func(ctx context.Context, _ string) (string, error) {
			loc, title, err := page.Location(ctx)
			if err != nil {
				return "", err
			}
			text, err := page.ReadPage(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("URL: %s\nTitle: %s\n\n%s", loc, title, text), nil
		})

	reg.Register(function("list_links",
		"List links on the current page as text and href.",
		map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum number of links, default 50"},
		}),
		func(ctx context.Context, args string) (string, error) {
			var in struct {
				Limit int `json:"limit"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			links, err := page.ListLinks(ctx, in.Limit)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for i, l := range links {
				fmt.Fprintf(&b, "%d. %s <%s>\n", i+1, l.Text, l.Href)
			}
			if b.Len() == 0 {
				return "No links found", nil
			}
			return b.String(), nil
		})

	reg.Register(function(DoneTool,
		"Finish the task. Put the complete answer for the user in summary.",
		map[string]any{
			"summary": map[string]any{"type": "string", "description": "Final answer"},
			"success": map[string]any{"type": "boolean", "description": "false if the task could not be completed"},
		}, "summary"),
		func(_ context.Context, args string) (string, error) {
			in := struct {
				Summary string `json:"summary"`
				Success *bool  `json:"success"`
			}{}
			if err := decodeArgs(args, &in); err != nil {
				return "", err
			}
			ok := in.Success == nil || *in.Success
			onDone(in.Summary, ok)
			return "done", nil
		})
}

func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func describeLocation(ctx context.Context, page browser.Page, verb string) (string, error) {
	loc, title, err := page.Location(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s (%s)", verb, loc, title), nil
}
