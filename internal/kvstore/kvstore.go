// Package kvstore keeps per-user long-term memory and conversation history in Redis.
//
// The store is advisory: every operation logs and swallows Redis errors and
// returns a safe default, so callers never have to branch on store failures.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	memoryPrefix  = "longterm_memory:"
	historyPrefix = "conversation_history:"

	// HistoryCap is the maximum number of history entries kept per user.
	HistoryCap = 100

	// DefaultHistoryLimit is used by GetHistory when limit <= 0.
	DefaultHistoryLimit = 10
)

// HistoryEntry is a single task/result pair in a user's conversation history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Task      string    `json:"task"`
	Result    string    `json:"result"`
}

// Store wraps a Redis client.
type Store struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time
}

// New connects to Redis at redisURL and verifies the connection.
func New(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected", zap.String("addr", opts.Addr))
	return NewWithClient(rdb, logger), nil
}

// NewWithClient wraps an existing client. The Store takes ownership of it.
func NewWithClient(rdb redis.UniversalClient, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, logger: logger, now: time.Now}
}

// StoreMemory sets key=value in the user's long-term memory. Last write wins.
func (s *Store) StoreMemory(ctx context.Context, userID, key, value string) bool {
	if err := s.rdb.HSet(ctx, memoryPrefix+userID, key, value).Err(); err != nil {
		s.logger.Warn("store long-term memory failed",
			zap.String("user", userID), zap.String("key", key), zap.Error(err))
		return false
	}
	s.logger.Debug("stored memory", zap.String("user", userID), zap.String("key", key))
	return true
}

// GetMemory returns a single long-term memory value.
// The boolean is false when the key is absent or Redis is unavailable.
func (s *Store) GetMemory(ctx context.Context, userID, key string) (string, bool) {
	v, err := s.rdb.HGet(ctx, memoryPrefix+userID, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.logger.Warn("get long-term memory failed",
			zap.String("user", userID), zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, true
}

// GetAllMemories returns every long-term memory for the user.
// It never returns nil.
func (s *Store) GetAllMemories(ctx context.Context, userID string) map[string]string {
	m, err := s.rdb.HGetAll(ctx, memoryPrefix+userID).Result()
	if err != nil {
		s.logger.Warn("get all long-term memories failed", zap.String("user", userID), zap.Error(err))
		return map[string]string{}
	}
	if m == nil {
		m = map[string]string{}
	}
	return m
}

// AppendHistory records a task and its result, keeping only the most recent
// HistoryCap entries.
func (s *Store) AppendHistory(ctx context.Context, userID, task, result string) bool {
	data, err := json.Marshal(HistoryEntry{
		Timestamp: s.now(),
		Task:      task,
		Result:    result,
	})
	if err != nil {
		s.logger.Warn("marshal history entry failed", zap.Error(err))
		return false
	}

	key := historyPrefix + userID
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -HistoryCap, -1)
		return nil
	})
	if err != nil {
		s.logger.Warn("store conversation history failed", zap.String("user", userID), zap.Error(err))
		return false
	}
	s.logger.Debug("stored conversation history", zap.String("user", userID))
	return true
}

// GetHistory returns up to limit of the user's most recent entries, oldest first.
func (s *Store) GetHistory(ctx context.Context, userID string, limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	raw, err := s.rdb.LRange(ctx, historyPrefix+userID, int64(-limit), -1).Result()
	if err != nil {
		s.logger.Warn("get conversation history failed", zap.String("user", userID), zap.Error(err))
		return []HistoryEntry{}
	}

	entries := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.logger.Debug("skipping undecodable history entry", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Close shuts down the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
