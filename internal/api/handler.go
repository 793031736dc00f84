package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/webpilot/internal/agent"
	"github.com/nidhogg/webpilot/internal/kvstore"
	"github.com/nidhogg/webpilot/internal/orchestrator"
	"github.com/nidhogg/webpilot/internal/semcache"
	"github.com/nidhogg/webpilot/internal/store"
)

// Orchestrator answers agent requests.
type Orchestrator interface {
	Handle(ctx context.Context, req orchestrator.Request) orchestrator.Outcome
	Execute(ctx context.Context, task string) orchestrator.Outcome
}

// MemoryStore is the per-user memory and history store.
type MemoryStore interface {
	StoreMemory(ctx context.Context, userID, key, value string) bool
	GetMemory(ctx context.Context, userID, key string) (string, bool)
	GetAllMemories(ctx context.Context, userID string) map[string]string
	GetHistory(ctx context.Context, userID string, limit int) []kvstore.HistoryEntry
}

// CacheStats reports semantic cache counters.
type CacheStats interface {
	Stats() semcache.Stats
}

// RunLister lists recorded agent runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Options configures the Handler.
type Options struct {
	DefaultTask string
	CORSOrigin  string
}

// Handler holds dependencies for HTTP handlers. Memory, cache and runs may be
// nil; their routes then answer 503.
type Handler struct {
	orch   Orchestrator
	memory MemoryStore
	cache  CacheStats
	runs   RunLister
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orch Orchestrator, memory MemoryStore, cache CacheStats, runs RunLister, opts Options, logger *zap.Logger) *Handler {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "http://localhost:3000"
	}
	return &Handler{
		orch:   orch,
		memory: memory,
		cache:  cache,
		runs:   runs,
		opts:   opts,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.opts.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.healthCheck)

	r.Route("/agent", func(r chi.Router) {
		r.Post("/chat", h.chat)
		r.Get("/execute", h.execute)
		r.Get("/runs", h.listRuns)
	})

	r.Get("/memory/{userID}", h.getMemories)
	r.Get("/memory/{userID}/{key}", h.getMemory)
	r.Put("/memory/{userID}/{key}", h.putMemory)
	r.Get("/history/{userID}", h.getHistory)

	r.Get("/cache/stats", h.cacheStats)

	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from WebPilot server!"})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type chatResponse struct {
	Message  string `json:"message"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	CacheHit bool   `json:"cache_hit"`
}

// chat answers 200 whether or not the agent succeeded; failure is carried in
// the success field.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	out := h.orch.Handle(r.Context(), orchestrator.Request{Query: req.Message, UserID: req.UserID})
	writeJSON(w, http.StatusOK, chatResponse{
		Message:  out.Message,
		Success:  out.Success,
		Error:    out.Error,
		CacheHit: out.CacheHit,
	})
}

type executeResponse struct {
	Summary string       `json:"summary"`
	Steps   []agent.Step `json:"steps"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	task := strings.TrimSpace(r.URL.Query().Get("task"))
	if task == "" {
		task = h.opts.DefaultTask
	}

	out := h.orch.Execute(r.Context(), task)
	resp := executeResponse{
		Summary: out.Message,
		Steps:   []agent.Step{},
		Success: out.Success,
		Error:   out.Error,
	}
	if out.Result != nil && out.Result.Steps != nil {
		resp.Steps = out.Result.Steps
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": store.ErrDisabled.Error()})
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if errors.Is(err, store.ErrDisabled) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("list runs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) getMemories(w http.ResponseWriter, r *http.Request) {
	if !h.memoryReady(w) {
		return
	}
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"memories": h.memory.GetAllMemories(r.Context(), userID),
	})
}

func (h *Handler) getMemory(w http.ResponseWriter, r *http.Request) {
	if !h.memoryReady(w) {
		return
	}
	userID, key := chi.URLParam(r, "userID"), chi.URLParam(r, "key")
	value, ok := h.memory.GetMemory(r.Context(), userID, key)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "memory not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "key": key, "value": value})
}

type putMemoryRequest struct {
	Value string `json:"value"`
}

func (h *Handler) putMemory(w http.ResponseWriter, r *http.Request) {
	if !h.memoryReady(w) {
		return
	}
	var req putMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	ok := h.memory.StoreMemory(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "key"), req.Value)
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if !h.memoryReady(w) {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"history": h.memory.GetHistory(r.Context(), userID, limit),
	})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "semantic cache not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) memoryReady(w http.ResponseWriter) bool {
	if h.memory == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "memory store not initialized"})
		return false
	}
	return true
}

// queryLimit parses ?limit=; zero means the store's default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
