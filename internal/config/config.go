package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
)

// DefaultTask is the task run by GET /agent/execute and the benchmark when none is given.
const DefaultTask = "Find the number 1 post on Show HN"

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Browser   BrowserConfig   `json:"browser"`
	Cache     CacheConfig     `json:"cache"`
	Database  DatabaseConfig  `json:"database"`
	Embedding EmbeddingConfig `json:"embedding"`
}

type ServerConfig struct {
	Port       int    `json:"port"`
	LogLevel   string `json:"log_level"`
	CORSOrigin string `json:"cors_origin"`
}

// LLMConfig selects the model that drives the browser agent.
// Fallbacks are tried in order when the primary provider errors.
type LLMConfig struct {
	Provider  string            `json:"provider"` // gemini|openai
	Model     string            `json:"model"`
	APIKey    string            `json:"api_key"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Fallbacks []LLMConfig       `json:"fallbacks,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

type AgentConfig struct {
	MaxSteps    int    `json:"max_steps"`
	DefaultTask string `json:"default_task"`
}

type BrowserConfig struct {
	Headless     bool   `json:"headless"`
	ExecPath     string `json:"exec_path,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	MaxPageChars int    `json:"max_page_chars"` // page text handed to the model per observation
}

type CacheConfig struct {
	Backend             string          `json:"backend"` // langcache|qdrant|memory
	SimilarityThreshold float64         `json:"similarity_threshold"`
	DedupeInflight      bool            `json:"dedupe_inflight"`
	LangCache           LangCacheConfig `json:"langcache"`
	Collection          string          `json:"collection"`
}

type LangCacheConfig struct {
	ServerURL string `json:"server_url"`
	CacheID   string `json:"cache_id"`
	APIKey    string `json:"api_key"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
// A missing file is not an error: the configuration is then built from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FromEnv(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := expandEnv(string(data))

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

// FromEnv builds a Config purely from environment variables.
func FromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:       envInt("PORT", 0),
			LogLevel:   os.Getenv("LOG_LEVEL"),
			CORSOrigin: os.Getenv("CORS_ORIGIN"),
		},
		LLM: LLMConfig{
			Provider: os.Getenv("LLM_PROVIDER"),
			Model:    os.Getenv("LLM_MODEL"),
			APIKey:   os.Getenv("GOOGLE_API_KEY"),
		},
		Agent: AgentConfig{
			MaxSteps: envInt("AGENT_MAX_STEPS", 0),
		},
		Browser: BrowserConfig{
			Headless: os.Getenv("BROWSER_HEADLESS") != "false",
			ExecPath: os.Getenv("CHROME_PATH"),
		},
		Cache: CacheConfig{
			Backend:        os.Getenv("CACHE_BACKEND"),
			DedupeInflight: os.Getenv("CACHE_DEDUPE_INFLIGHT") == "true",
			LangCache: LangCacheConfig{
				ServerURL: os.Getenv("LANGCACHE_SERVER_URL"),
				CacheID:   os.Getenv("LANGCACHE_CACHE_ID"),
				APIKey:    os.Getenv("LANGCACHE_API_KEY"),
			},
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{DSN: os.Getenv("DATABASE_URL")},
			Redis:    RedisConfig{URL: os.Getenv("REDIS_URL")},
			Qdrant: QdrantConfig{
				Host: os.Getenv("QDRANT_HOST"),
				Port: envInt("QDRANT_PORT", 0),
			},
		},
		Embedding: EmbeddingConfig{
			Endpoint:  os.Getenv("EMBEDDING_ENDPOINT"),
			Model:     os.Getenv("EMBEDDING_MODEL"),
			APIKey:    os.Getenv("EMBEDDING_API_KEY"),
			Dimension: envInt("EMBEDDING_DIMENSION", 0),
		},
	}
	if v := os.Getenv("CACHE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cache.SimilarityThreshold = f
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "http://localhost:3000"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" && c.LLM.Provider == "gemini" {
		c.LLM.Model = "gemini-flash-latest"
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 25
	}
	if c.Agent.DefaultTask == "" {
		c.Agent.DefaultTask = DefaultTask
	}
	if c.Browser.MaxPageChars == 0 {
		c.Browser.MaxPageChars = 6000
	}
	if c.Cache.Backend == "" {
		if c.Cache.LangCache.CacheID != "" {
			c.Cache.Backend = "langcache"
		} else {
			c.Cache.Backend = "memory"
		}
	}
	if c.Cache.SimilarityThreshold == 0 {
		c.Cache.SimilarityThreshold = 1
	}
	if c.Cache.LangCache.ServerURL == "" {
		c.Cache.LangCache.ServerURL = "https://aws-us-east-1.langcache.redis.io"
	}
	if c.Cache.Collection == "" {
		c.Cache.Collection = "webpilot_semantic_cache"
	}
	if c.Database.Qdrant.Host == "" {
		c.Database.Qdrant.Host = "localhost"
	}
	if c.Database.Qdrant.Port == 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
