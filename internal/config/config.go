// Package config provides unified configuration loading for linksim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagelift/linksim/internal/constants"
)

// Config contains all linksim configuration settings.
type Config struct {
	// Solver tunes the score computation.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Semantic configures the external similarity collaborator.
	Semantic SemanticConfig `json:"semantic" yaml:"semantic"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging configures operational and run-trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// SolverConfig tunes the iterative solver.
type SolverConfig struct {
	// Damping is the probability of following a link vs. teleporting.
	Damping float64 `json:"damping" yaml:"damping"`

	// Tolerance is the L1 convergence threshold.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	// MaxIterations bounds the power-iteration loop.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// ProtectBudget is the teleportation mass reserved for protected
	// pages per iteration.
	ProtectBudget float64 `json:"protect_budget" yaml:"protect_budget"`

	// BoostBudget is the teleportation mass reserved for boosted pages
	// per iteration.
	BoostBudget float64 `json:"boost_budget" yaml:"boost_budget"`

	// Workers bounds the matrix-vector fan-out. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// SemanticConfig configures semantic edge weighting.
type SemanticConfig struct {
	// Enabled turns semantic weighting on. When off, edges keep their
	// structural position weights (legacy uniform mode).
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Endpoint is the similarity service URL. Empty selects the built-in
	// token scorer.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Threshold is the minimum similarity below which the semantic
	// contribution is zeroed.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// RequestsPerSecond rate-limits calls to the similarity service.
	// 0 disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`

	// Timeout is the per-request timeout against the service.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RedisAddr enables a shared Redis score cache when non-empty.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`

	// RedisTTL expires cached scores. 0 means no expiry.
	RedisTTL time.Duration `json:"redis_ttl,omitempty" yaml:"redis_ttl,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "postgres".
	Backend string `json:"backend" yaml:"backend"`

	// DatabaseURL is the Postgres connection string. Supports ${VAR}
	// expansion. Required when Backend is "postgres".
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
}

// LoggingConfig configures linksim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run tracing to .linksim/runs.jsonl.
	Level string `json:"level" yaml:"level"`

	// File, when non-empty, mirrors logs to a size-rotated JSON file.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// MaxSizeMB rotates the log file past this size.
	MaxSizeMB int `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`

	// MaxBackups bounds how many rotated files are kept.
	MaxBackups int `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics during long-running commands.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address, e.g. ":9109".
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Damping:       constants.DefaultDamping,
			Tolerance:     constants.DefaultTolerance,
			MaxIterations: constants.DefaultMaxIterations,
			ProtectBudget: constants.DefaultProtectBudget,
			BoostBudget:   constants.DefaultBoostBudget,
		},
		Semantic: SemanticConfig{
			Enabled:   false,
			Threshold: constants.DefaultSemanticThreshold,
			Timeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9109",
		},
	}
}

// Load loads configuration from the default locations and environment
// variables. Order: defaults -> <root>/.linksim/config.yaml -> env.
func Load(projectRoot string) (*Config, error) {
	config := Default()

	configPath := filepath.Join(projectRoot, ".linksim", "config.yaml")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.DatabaseURL = expandEnvVars(config.Store.DatabaseURL)
	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Solver.Damping <= 0 || c.Solver.Damping >= 1 {
		return fmt.Errorf("solver.damping must be in (0,1), got %g", c.Solver.Damping)
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.ProtectBudget < 0 || c.Solver.ProtectBudget > 1 {
		return fmt.Errorf("solver.protect_budget must be in [0,1], got %g", c.Solver.ProtectBudget)
	}
	if c.Solver.BoostBudget < 0 || c.Solver.BoostBudget > 1 {
		return fmt.Errorf("solver.boost_budget must be in [0,1], got %g", c.Solver.BoostBudget)
	}

	if c.Semantic.Threshold < 0 || c.Semantic.Threshold > 1 {
		return fmt.Errorf("semantic.threshold must be between 0 and 1, got %g", c.Semantic.Threshold)
	}
	if c.Semantic.Timeout < 0 {
		return fmt.Errorf("semantic.timeout must be non-negative, got %v", c.Semantic.Timeout)
	}

	validBackends := map[string]bool{"": true, "sqlite": true, "postgres": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (valid: sqlite, postgres, memory)", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.DatabaseURL == "" {
		return fmt.Errorf("store.database_url is required for the postgres backend")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LINKSIM_DAMPING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Solver.Damping = f
		}
	}
	if v := os.Getenv("LINKSIM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Solver.MaxIterations = n
		}
	}
	if v := os.Getenv("LINKSIM_PROTECT_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Solver.ProtectBudget = f
		}
	}
	if v := os.Getenv("LINKSIM_BOOST_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Solver.BoostBudget = f
		}
	}
	if v := os.Getenv("LINKSIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Solver.Workers = n
		}
	}

	if v := os.Getenv("LINKSIM_SEMANTIC_ENABLED"); v != "" {
		config.Semantic.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LINKSIM_SEMANTIC_ENDPOINT"); v != "" {
		config.Semantic.Endpoint = v
	}
	if v := os.Getenv("LINKSIM_REDIS_ADDR"); v != "" {
		config.Semantic.RedisAddr = v
	}

	if v := os.Getenv("LINKSIM_STORE_BACKEND"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && config.Store.Backend == "postgres" {
		config.Store.DatabaseURL = v
	}

	if v := os.Getenv("LINKSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LINKSIM_METRICS_ADDR"); v != "" {
		config.Metrics.Enabled = true
		config.Metrics.Addr = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment
// variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
