// Package config holds the orchestration engine's ambient configuration:
// LLM/embedding provider selection, vector store backend, execution and
// budget defaults, and logging. It follows the same defaults-then-YAML-
// then-env-override layering used throughout the codebase's config
// loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"codenerd/internal/logging"
)

var log = logging.L("config")

// Config holds every setting needed to construct an orchestrator.Orchestrator.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Budget      BudgetConfig      `yaml:"budget"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LLMConfig selects the reasoning model provider and the concrete model ID
// bound to each budget tier.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "gemini" is the only wired real provider; "fake" for dry runs
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"` // parsed duration, e.g. "120s"

	HighestModel string `yaml:"highest_model"`
	MiddleModel  string `yaml:"middle_model"`
	SmallModel   string `yaml:"small_model"`
	XSModel      string `yaml:"xs_model"`
}

// EmbeddingConfig selects the embedding provider used by the vector store.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "gemini" or "hash" (deterministic offline fallback)
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// VectorStoreConfig selects the knowledge/code-context store backend.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "memory"
	Path    string `yaml:"path"`
}

// ExecutionConfig bounds the orchestrator's phase timeouts and worker pool.
type ExecutionConfig struct {
	ProjectPath    string `yaml:"project_path"`
	WorkerPoolSize int    `yaml:"worker_pool_size"`
	PhaseTimeout   string `yaml:"phase_timeout"`
	LLMCallTimeout string `yaml:"llm_call_timeout"`
}

// BudgetConfig bounds the session's token/cost spend and approval gate.
type BudgetConfig struct {
	SessionBudgetUSD     *float64 `yaml:"session_budget_usd"` // nil = unbounded
	AutoApproveThreshold float64  `yaml:"auto_approve_threshold"`
	PriceTable           map[string]float64 `yaml:"price_table"` // modelID -> USD per 1K tokens
}

// LoggingConfig controls the shared zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug" or "info"
	Format string `yaml:"format"` // "json" or "console" — informational only, zap always emits JSON
}

// DefaultConfig returns a fully populated default configuration. It is
// always the starting point for Load, so a missing or partial config file
// never leaves a zero-valued field behind.
func DefaultConfig() *Config {
	return &Config{
		Name:    "evolve",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:     "gemini",
			Timeout:      "120s",
			HighestModel: "gemini-2.5-pro",
			MiddleModel:  "gemini-2.5-flash",
			SmallModel:   "gemini-2.5-flash",
			XSModel:      "gemini-2.5-flash-lite",
		},
		Embedding: EmbeddingConfig{
			Provider:   "gemini",
			Model:      "gemini-embedding-001",
			Dimensions: 3072,
		},
		VectorStore: VectorStoreConfig{
			Backend: "sqlite",
			Path:    ".evolve/vectors.db",
		},
		Execution: ExecutionConfig{
			ProjectPath:    ".",
			WorkerPoolSize: 8,
			PhaseTimeout:   "10m",
			LLMCallTimeout: "60s",
		},
		Budget: BudgetConfig{
			AutoApproveThreshold: 0.001,
			PriceTable:           map[string]float64{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file, starting from DefaultConfig
// and layering the file's values over it. A missing file is not an error:
// defaults (plus env overrides) are returned silently.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugw("config file not found, using defaults", "path", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	log.Debugw("config loaded", "provider", cfg.LLM.Provider, "backend", cfg.VectorStore.Backend)
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets API keys and a few operational knobs come from
// the environment rather than a checked-in file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.APIKey = key
	}
	if path := os.Getenv("EVOLVE_VECTOR_DB"); path != "" {
		c.VectorStore.Path = path
	}
	if s := os.Getenv("EVOLVE_SESSION_BUDGET_USD"); s != "" {
		if v, err := parseFloat(s); err == nil {
			c.Budget.SessionBudgetUSD = &v
		}
	}
}

// GetLLMTimeout returns the LLM request timeout, falling back to a
// hardcoded default if the configured value doesn't parse.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetPhaseTimeout returns the per-phase orchestration timeout.
func (c *Config) GetPhaseTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.PhaseTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetLLMCallTimeout returns the configured per-call LLM timeout; cmd/evolve
// copies it into orchestrator.Config.LLMCallTimeout.
func (c *Config) GetLLMCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.LLMCallTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ValidProviders lists the LLM providers this build knows how to construct.
var ValidProviders = []string{"gemini", "fake"}

// Validate checks that the configuration is internally consistent enough
// to build an orchestrator from.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("config: invalid LLM provider %q (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return fmt.Errorf("config: LLM provider is gemini but no API key set (GEMINI_API_KEY)")
	}
	if c.VectorStore.Backend != "sqlite" && c.VectorStore.Backend != "memory" {
		return fmt.Errorf("config: invalid vector store backend %q", c.VectorStore.Backend)
	}
	if c.Budget.AutoApproveThreshold < 0 {
		return fmt.Errorf("config: auto_approve_threshold must be >= 0")
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
