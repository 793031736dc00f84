package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/nidhogg/webpilot/internal/provider"
)

// ErrUnknownTool is returned when the model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolHandler executes a tool call and returns the observation fed back to the model.
type ToolHandler func(ctx context.Context, args string) (string, error)

// ToolRegistry holds available tools and their handlers.
type ToolRegistry struct {
	defs     []provider.Tool
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		handlers: make(map[string]ToolHandler),
	}
}

// Register adds a tool definition and its handler.
func (r *ToolRegistry) Register(def provider.Tool, handler ToolHandler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Function.Name] = handler
}

// Definitions returns all tool definitions for the LLM request.
func (r *ToolRegistry) Definitions() []provider.Tool {
	return r.defs
}

// Execute runs a tool by name with the given JSON arguments.
func (r *ToolRegistry) Execute(ctx context.Context, name, args string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h(ctx, args)
}

func function(name, description string, props map[string]any, required ...string) provider.Tool {
	params := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}
