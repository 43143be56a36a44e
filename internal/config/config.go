// Package config loads the loom configuration from YAML and environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/loom/internal/compression"
	"github.com/haasonsaas/loom/internal/observability"
)

// Config is the main configuration structure for loom.
type Config struct {
	Provider    string                    `yaml:"provider"`
	Anthropic   ProviderConfig            `yaml:"anthropic"`
	OpenAI      ProviderConfig            `yaml:"openai"`
	Agent       AgentConfig               `yaml:"agent"`
	Compression compression.Config        `yaml:"compression"`
	Sessions    SessionsConfig            `yaml:"sessions"`
	Logging     observability.LogConfig   `yaml:"logging"`
	Tracing     observability.TraceConfig `yaml:"tracing"`
}

// ProviderConfig holds per-provider credentials and model selection.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxIterations   int           `yaml:"max_iterations"`
	MaxTokens       int           `yaml:"max_tokens"`
	ToolParallelism int           `yaml:"tool_parallelism"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	WorkingDir      string        `yaml:"working_dir"`
}

// SessionsConfig selects the snapshot store backend.
type SessionsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Load reads the configuration file at path, expanding ${VAR} references
// from the environment. A missing file yields the defaults. A .env file
// in the working directory is loaded first so API keys can live there.
func Load(path string) (*Config, error) {
	// Ignore absence; .env is optional.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Anthropic.DefaultModel == "" {
		cfg.Anthropic.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.OpenAI.DefaultModel == "" {
		cfg.OpenAI.DefaultModel = "gpt-4o"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 20
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.ToolParallelism == 0 {
		cfg.Agent.ToolParallelism = 5
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = time.Minute
	}
	if cfg.Compression.MaxMessages == 0 {
		cfg.Compression.MaxMessages = 40
	}
	if cfg.Compression.MaxTokens == 0 {
		cfg.Compression.MaxTokens = 80000
	}
	if cfg.Compression.KeepRecent == 0 {
		cfg.Compression.KeepRecent = 12
	}
	if cfg.Compression.SummaryTargetTokens == 0 {
		cfg.Compression.SummaryTargetTokens = 2000
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnv fills credentials from the environment when the file left
// them empty.
func applyEnv(cfg *Config) {
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
