// Package browser drives a headless Chrome instance through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// ErrInvalidURL is returned by Navigate for anything that is not an http(s) URL.
var ErrInvalidURL = errors.New("browser: invalid url")

// Page is one browser tab as seen by the agent.
type Page interface {
	Navigate(ctx context.Context, rawURL string) error
	Click(ctx context.Context, selector string) error
	TypeText(ctx context.Context, selector, text string, submit bool) error
	ReadPage(ctx context.Context) (string, error)
	ListLinks(ctx context.Context, limit int) ([]Link, error)
	Location(ctx context.Context) (string, string, error)
	Close() error
}

// Launcher opens Pages.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Link is an anchor on the current page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Config controls how Chrome is started.
type Config struct {
	Headless      bool
	ExecPath      string
	UserAgent     string
	MaxPageChars  int
	ActionTimeout time.Duration
}

// ChromeLauncher starts one Chrome process per Launch.
type ChromeLauncher struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromeLauncher returns a launcher with defaults applied.
func NewChromeLauncher(cfg Config, logger *zap.Logger) *ChromeLauncher {
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = 6000
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	return &ChromeLauncher{cfg: cfg, logger: logger}
}

// Launch starts Chrome and opens a blank tab. The session ends when ctx is
// cancelled or Close is called.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 900),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	s := &Session{
		ctx:    tabCtx,
		cancel: func() { tabCancel(); allocCancel() },
		cfg:    l.cfg,
		logger: l.logger,
	}
	// The first Run starts Chrome bound to its context, so it gets the
	// session context itself and no action timeout.
	if err := startBrowser(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	l.logger.Debug("browser session started", zap.Bool("headless", l.cfg.Headless))
	return s, nil
}

// startBrowser launches the Chrome process for a fresh tab context.
var startBrowser = func(tabCtx context.Context) error {
	return chromedp.Run(tabCtx)
}

// Session is a single Chrome tab.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger
}

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(actx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads rawURL and waits for the body. A missing scheme defaults to https.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Navigate(u), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", u, err)
	}
	return nil
}

// Click clicks the first visible element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// TypeText replaces the value of an input and optionally presses Enter.
func (s *Session) TypeText(ctx context.Context, selector, text string, submit bool) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
	if submit {
		actions = append(actions, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// ReadPage returns the visible text of the page, whitespace-collapsed and clipped.
func (s *Session) ReadPage(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return Clip(CollapseSpace(text), s.cfg.MaxPageChars), nil
}

const linksJS = `Array.from(document.querySelectorAll('a[href]'))
	.filter(a => a.href.startsWith('http'))
	.slice(0, %d)
	.map(a => ({text: (a.innerText || a.title || '').trim().slice(0, 120), href: a.href}))`

// ListLinks returns up to limit http(s) anchors in document order.
func (s *Session) ListLinks(ctx context.Context, limit int) ([]Link, error) {
	if limit <= 0 {
		limit = 50
	}
	var links []Link
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(linksJS, limit), &links)); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

// Location returns the current URL and title.
func (s *Session) Location(ctx context.Context) (string, string, error) {
	var loc, title string
	if err := s.run(ctx, chromedp.Location(&loc), chromedp.Title(&title)); err != nil {
		return "", "", fmt.Errorf("location: %w", err)
	}
	return loc, title, nil
}

// Close shuts the tab and the Chrome process.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// NormalizeURL accepts absolute http(s) URLs and bare hosts.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// CollapseSpace folds runs of blank lines and spaces.
func CollapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Clip truncates s to at most n runes, marking the cut.
func Clip(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n...[truncated]"
}
