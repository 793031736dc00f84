package semcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LangCacheConfig addresses a LangCache instance.
type LangCacheConfig struct {
	ServerURL string
	CacheID   string
	APIKey    string
	Timeout   time.Duration
}

// LangCache is a Backend talking to the LangCache REST API.
type LangCache struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLangCache validates cfg and returns a client.
func NewLangCache(cfg LangCacheConfig) (*LangCache, error) {
	if cfg.ServerURL == "" || cfg.CacheID == "" {
		return nil, errors.New("langcache: server url and cache id are required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &LangCache{
		baseURL: strings.TrimRight(cfg.ServerURL, "/") + "/v1/caches/" + cfg.CacheID,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Prompt              string  `json:"prompt"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
}

type setRequest struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Search implements Backend.
func (l *LangCache) Search(ctx context.Context, prompt string, threshold float64) (Match, error) {
	body, err := l.post(ctx, "/entries/search", searchRequest{Prompt: prompt, SimilarityThreshold: threshold})
	if err != nil {
		return Miss, err
	}
	return DecodeSearch(body)
}

// Set implements Backend.
func (l *LangCache) Set(ctx context.Context, prompt, response string) error {
	_, err := l.post(ctx, "/entries", setRequest{Prompt: prompt, Response: response})
	return err
}

func (l *LangCache) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("langcache: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("langcache: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("langcache: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("langcache: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("langcache: %s returned status %d: %.200s", path, resp.StatusCode, body)
	}
	return body, nil
}

// langCacheEntry is one search result.
type langCacheEntry struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Response   *string  `json:"response"`
	Similarity *float64 `json:"similarity"`
}

func (e langCacheEntry) match() Match {
	if e.Response == nil || IsMissSentinel(*e.Response) {
		return Miss
	}
	m := Match{Hit: true, Response: *e.Response, Prompt: e.Prompt}
	if e.Similarity != nil {
		m.Score = *e.Similarity
	}
	return m
}

// DecodeSearch turns a search payload into a Match. The service has been seen
// answering with a wrapped list ({"data":[...]}), a bare list, a single entry
// object, a bare string, or nothing at all. The first list element wins.
func DecodeSearch(body []byte) (Match, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Miss, nil
	}

	switch body[0] {
	case '[':
		return decodeList(body)
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return Miss, fmt.Errorf("langcache: decode search object: %w", err)
		}
		if data, ok := probe["data"]; ok {
			data = bytes.TrimSpace(data)
			if len(data) == 0 || bytes.Equal(data, []byte("null")) {
				return Miss, nil
			}
			if data[0] != '[' {
				return DecodeSearch(data)
			}
			return decodeList(data)
		}
		var e langCacheEntry
		if err := json.Unmarshal(body, &e); err != nil {
			return Miss, fmt.Errorf("langcache: decode search entry: %w", err)
		}
		return e.match(), nil
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return Miss, fmt.Errorf("langcache: decode search string: %w", err)
		}
		if IsMissSentinel(s) {
			return Miss, nil
		}
		return Match{Hit: true, Response: s}, nil
	default:
		return Miss, fmt.Errorf("langcache: unexpected search payload %.40q", body)
	}
}

func decodeList(body []byte) (Match, error) {
	var entries []langCacheEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return Miss, fmt.Errorf("langcache: decode search list: %w", err)
	}
	if len(entries) == 0 {
		return Miss, nil
	}
	return entries[0].match(), nil
}
