package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/browser"
	"github.com/nidhogg/webpilot/internal/provider"
)

// scriptedLLM replays canned responses and records the requests it saw.
type scriptedLLM struct {
	replies []*provider.ChatResponse
	err     error
	reqs    []*provider.ChatRequest
}

func (s *scriptedLLM) ID() string   { return "scripted" }
func (s *scriptedLLM) Name() string { return "scripted" }
func (s *scriptedLLM) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	cp := *req
	cp.Messages = append([]provider.Message(nil), req.Messages...)
	s.reqs = append(s.reqs, &cp)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.reqs) > len(s.replies) {
		return s.replies[len(s.replies)-1], nil
	}
	return s.replies[len(s.reqs)-1], nil
}

func call(id, name, args string) provider.ToolCall {
	return provider.ToolCall{ID: id, Type: "function", Function: provider.ToolCallFunction{Name: name, Arguments: args}}
}

func toolReply(calls ...provider.ToolCall) *provider.ChatResponse {
	return &provider.ChatResponse{ToolCalls: calls, Usage: provider.Usage{TotalTokens: 10}}
}

type fakePage struct {
	url     string
	text    string
	navErr  error
	clicked []string
	closed  bool
	panicOn string
}

func (p *fakePage) Navigate(_ context.Context, u string) error {
	if p.panicOn == "navigate" {
		panic("chrome crashed")
	}
	if p.navErr != nil {
		return p.navErr
	}
	p.url = u
	return nil
}
func (p *fakePage) Click(_ context.Context, sel string) error {
	p.clicked = append(p.clicked, sel)
	return nil
}
func (p *fakePage) TypeText(context.Context, string, string, bool) error { return nil }
func (p *fakePage) ReadPage(context.Context) (string, error)             { return p.text, nil }
func (p *fakePage) ListLinks(context.Context, int) ([]browser.Link, error) {
	return []browser.Link{{Text: "Show HN: A thing", Href: "https://example.com/thing"}}, nil
}
func (p *fakePage) Location(context.Context) (string, string, error) { return p.url, "Show HN", nil }
func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeLauncher struct {
	page *fakePage
	err  error
}

func (l *fakeLauncher) Launch(context.Context) (browser.Page, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

func TestAgentRunsToDone(t *testing.T) {
	page := &fakePage{text: "1. Show HN: A thing"}
	llm := &scriptedLLM{replies: []*provider.ChatResponse{
		toolReply(call("c1", "navigate", `{"url":"https://news.ycombinator.com/show"}`)),
		toolReply(call("c2", "read_page", `{}`), call("c3", "list_links", `{"limit":5}`)),
		toolReply(call("c4", "done", `{"summary":"The top Show HN post is A thing"}`)),
	}}

	res, err := New("Find the number 1 post on Show HN", llm, page, 10, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Summary != "The top Show HN post is A thing" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(res.Steps))
	}
	if res.Steps[1].Action != "read_page" || !strings.Contains(res.Steps[1].Observation, "Show HN: A thing") {
		t.Errorf("read_page step %+v", res.Steps[1])
	}
	if res.Tokens != 30 {
		t.Errorf("tokens %d, want 30", res.Tokens)
	}

	// Tool results are sent back tagged with the tool name and call ID.
	last := llm.reqs[2].Messages
	tail := last[len(last)-1]
	if tail.Role != "tool" || tail.Name != "list_links" || tail.ToolCallID != "c3" {
		t.Errorf("unexpected tool message %+v", tail)
	}
	if page.url != "https://news.ycombinator.com/show" {
		t.Errorf("page url %q", page.url)
	}
}

func TestAgentPlainAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []*provider.ChatResponse{{Content: "  42  "}}}
	res, err := New("what", llm, &fakePage{}, 5, zap.NewNop()).Run(context.Background())
	if err != nil || res.Summary != "42" || !res.Success {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestAgentStepLimit(t *testing.T) {
	llm := &scriptedLLM{replies: []*provider.ChatResponse{
		toolReply(call("c", "click", `{"selector":"a.more"}`)),
	}}
	page := &fakePage{}
	res, err := New("loop", llm, page, 3, zap.NewNop()).Run(context.Background())
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("got %v, want ErrStepLimit", err)
	}
	if len(page.clicked) != 3 || res.Success {
		t.Errorf("clicked %d times, result %+v", len(page.clicked), res)
	}
}

func TestAgentToolErrorIsObservation(t *testing.T) {
	llm := &scriptedLLM{replies: []*provider.ChatResponse{
		toolReply(call("c1", "navigate", `{"url":"https://down.example"}`)),
		toolReply(call("c2", "nope", `{}`)),
		{Content: "could not load"},
	}}
	page := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	res, err := New("t", llm, page, 5, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Error == "" || !strings.Contains(res.Steps[1].Error, "unknown tool") {
		t.Errorf("errors not recorded: %+v", res.Steps)
	}
	msgs := llm.reqs[1].Messages
	if got := msgs[len(msgs)-1].Content; !strings.HasPrefix(got, "error: ") {
		t.Errorf("tool error not fed back: %q", got)
	}
}

func TestAgentGaveUp(t *testing.T) {
	llm := &scriptedLLM{replies: []*provider.ChatResponse{
		toolReply(call("c1", "done", `{"summary":"blocked by captcha","success":false}`)),
	}}
	res, err := New("t", llm, &fakePage{}, 5, zap.NewNop()).Run(context.Background())
	if !errors.Is(err, ErrGaveUp) {
		t.Fatalf("got %v, want ErrGaveUp", err)
	}
	if res.Success {
		t.Error("result marked successful")
	}
}

func TestAgentLLMError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("quota exceeded")}
	_, err := New("t", llm, &fakePage{}, 5, zap.NewNop()).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("got %v", err)
	}
}

func TestAgentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &scriptedLLM{replies: []*provider.ChatResponse{{Content: "x"}}}
	if _, err := New("t", llm, &fakePage{}, 5, zap.NewNop()).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(llm.reqs) != 0 {
		t.Error("llm called after cancellation")
	}
}

func TestDispatcherClosesSession(t *testing.T) {
	page := &fakePage{}
	llm := &scriptedLLM{replies: []*provider.ChatResponse{{Content: "ok"}}}
	d := NewDispatcher(llm, &fakeLauncher{page: page}, 5, zap.NewNop())

	res, err := d.Dispatch(context.Background(), "t")
	if err != nil || res.String() != "ok" {
		t.Fatalf("got %v, %v", res, err)
	}
	if !page.closed {
		t.Error("browser session not closed")
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	page := &fakePage{panicOn: "navigate"}
	llm := &scriptedLLM{replies: []*provider.ChatResponse{
		toolReply(call("c1", "navigate", `{"url":"https://x.example"}`)),
	}}
	d := NewDispatcher(llm, &fakeLauncher{page: page}, 5, zap.NewNop())

	_, err := d.Dispatch(context.Background(), "t")
	if err == nil || !strings.Contains(err.Error(), "chrome crashed") {
		t.Fatalf("got %v, want recovered panic", err)
	}
	if !page.closed {
		t.Error("browser session not closed after panic")
	}
}

func TestDispatcherErrors(t *testing.T) {
	d := NewDispatcher(nil, &fakeLauncher{}, 5, zap.NewNop())
	if _, err := d.Dispatch(context.Background(), "t"); !errors.Is(err, ErrNoProvider) {
		t.Errorf("got %v, want ErrNoProvider", err)
	}

	d = NewDispatcher(&scriptedLLM{}, &fakeLauncher{err: errors.New("chrome not found")}, 5, zap.NewNop())
	if _, err := d.Dispatch(context.Background(), "t"); err == nil || !strings.Contains(err.Error(), "chrome not found") {
		t.Errorf("got %v", err)
	}
}

func TestResultString(t *testing.T) {
	r := &Result{}
	r.record("navigate", `{"url":"u"}`, "Loaded u", nil)
	r.record("click", `{"selector":"a"}`, "", errors.New("no node"))
	got := r.String()
	want := "1. navigate({\"url\":\"u\"}) -> Loaded u\n2. click({\"selector\":\"a\"}) failed: no node"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	r.Summary = "answer"
	if r.String() != "answer" {
		t.Errorf("summary not preferred: %q", r.String())
	}
	var nilRes *Result
	if nilRes.String() != "" {
		t.Error("nil result should render empty")
	}
}
