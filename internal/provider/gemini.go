package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider on the Gemini API via google.golang.org/genai.
type GeminiProvider struct {
	config ProviderConfig
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini client. Endpoint, when set, overrides the API base URL.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-flash-latest"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{config: cfg, client: client, logger: logger}, nil
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

// Chat sends the conversation to GenerateContent and maps function calls to ToolCalls.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	system, contents := toGeminiContents(req.Messages)
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		gc.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		gc.Tools = toGeminiTools(req.Tools)
		gc.ToolConfig = toGeminiToolConfig(req.ToolChoice)
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("genai generate content: %w", err)
	}
	resp, err := fromGeminiResponse(result)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	p.logger.Debug("gemini chat completed",
		zap.String("model", resp.Model),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

// toGeminiContents splits system messages into the system instruction and
// groups consecutive tool results into a single user turn.
func toGeminiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				part := genai.NewPartFromFunctionCall(tc.Function.Name, parseArgs(tc.Function.Arguments))
				part.ThoughtSignature = tc.ThoughtSignature
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case "tool":
			part := genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": m.Content})
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(m.Content)}})
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(strings.Join(system, "\n\n"))}}, contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func toGeminiTools(tools []Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  toGeminiSchema(t.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiToolConfig(choice string) *genai.ToolConfig {
	mode := genai.FunctionCallingConfigModeAuto
	switch choice {
	case "required":
		mode = genai.FunctionCallingConfigModeAny
	case "none":
		mode = genai.FunctionCallingConfigModeNone
	}
	return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
}

// toGeminiSchema converts a JSON Schema object into a genai.Schema.
func toGeminiSchema(js map[string]any) *genai.Schema {
	if len(js) == 0 {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := js["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := js["description"].(string); ok {
		s.Description = d
	}
	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[name] = toGeminiSchema(pm)
			}
		}
	}
	s.Required = stringList(js["required"])
	s.Enum = stringList(js["enum"])
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = toGeminiSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fromGeminiResponse(result *genai.GenerateContentResponse) (*ChatResponse, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	cand := result.Candidates[0]
	resp := &ChatResponse{
		ID:           result.ResponseID,
		Model:        result.ModelVersion,
		FinishReason: string(cand.FinishReason),
	}

	var text []string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" && !part.Thought {
				text = append(text, part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				args, err := json.Marshal(fc.Args)
				if err != nil {
					return nil, fmt.Errorf("encode function call args: %w", err)
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:       id,
					Type:     "function",
					Function: ToolCallFunction{Name: fc.Name, Arguments: string(args)},

					ThoughtSignature: part.ThoughtSignature,
				})
			}
		}
	}
	resp.Content = strings.Join(text, "\n")

	if u := result.UsageMetadata; u != nil {
		resp.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func parseArgs(s string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{}
	}
	return out
}
