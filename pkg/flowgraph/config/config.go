package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Retrieval backends.
const (
	RetrievalMemory   = "memory"
	RetrievalWeaviate = "weaviate"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config is the full application configuration.
type Config struct {
	Engine    Engine    `yaml:"engine"`
	LLM       LLM       `yaml:"llm"`
	Store     Store     `yaml:"store"`
	Retrieval Retrieval `yaml:"retrieval"`
	Tools     Tools     `yaml:"tools"`
	Log       Log       `yaml:"log"`
}

// Engine bounds a single run.
type Engine struct {
	MaxSteps       int           `yaml:"max_steps" split_words:"true"`
	Timeout        time.Duration `yaml:"timeout"`
	ToolLoopBudget int           `yaml:"tool_loop_budget" split_words:"true"`
	MaxRetries     int           `yaml:"max_retries" split_words:"true"`
}

// LLM configures the generation capability.
type LLM struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key" split_words:"true"`
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" split_words:"true"`
}

// Store selects the checkpoint backend. Path is used by sqlite and badger,
// URL by redis.
type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	URL     string `yaml:"url"`
}

// Retrieval selects the knowledge base backend.
type Retrieval struct {
	Backend string `yaml:"backend"`
	Host    string `yaml:"host"`
	Scheme  string `yaml:"scheme"`
	Class   string `yaml:"class"`
	Limit   int    `yaml:"limit"`
}

// Tools configures the CultPass tool backend.
type Tools struct {
	Database string `yaml:"database"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Engine: Engine{
			MaxSteps:       100,
			Timeout:        2 * time.Minute,
			ToolLoopBudget: 8,
			MaxRetries:     3,
		},
		LLM: LLM{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Store: Store{
			Backend: StoreMemory,
		},
		Retrieval: Retrieval{
			Backend: RetrievalMemory,
			Scheme:  "http",
			Class:   "CultPassArticle",
			Limit:   4,
		},
		Tools: Tools{
			Database: "cultpass.db",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Engine.MaxSteps <= 0 {
		add("engine.max_steps must be positive, got %d", c.Engine.MaxSteps)
	}
	if c.Engine.Timeout < 0 {
		add("engine.timeout must not be negative, got %s", c.Engine.Timeout)
	}
	if c.Engine.ToolLoopBudget <= 0 {
		add("engine.tool_loop_budget must be positive, got %d", c.Engine.ToolLoopBudget)
	}
	if c.Engine.MaxRetries < 0 {
		add("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			add("llm.api_key is required for the openai provider")
		}
	case ProviderMock:
	default:
		add("llm.provider %q is not one of openai, mock", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be within [0, 2], got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxAttempts < 1 {
		add("llm.max_attempts must be at least 1, got %d", c.LLM.MaxAttempts)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite, StoreBadger:
		if c.Store.Path == "" {
			add("store.path is required for the %s backend", c.Store.Backend)
		}
	case StoreRedis:
		if c.Store.URL == "" {
			add("store.url is required for the redis backend")
		}
	default:
		add("store.backend %q is not one of memory, sqlite, badger, redis", c.Store.Backend)
	}

	switch c.Retrieval.Backend {
	case RetrievalMemory:
	case RetrievalWeaviate:
		if c.Retrieval.Host == "" {
			add("retrieval.host is required for the weaviate backend")
		}
		if c.Retrieval.Class == "" {
			add("retrieval.class is required for the weaviate backend")
		}
	default:
		add("retrieval.backend %q is not one of memory, weaviate", c.Retrieval.Backend)
	}
	if c.Retrieval.Limit <= 0 {
		add("retrieval.limit must be positive, got %d", c.Retrieval.Limit)
	}

	if c.Tools.Database == "" {
		add("tools.database is required")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		add("log.format %q is not one of text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
