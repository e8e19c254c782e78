// Package config loads and validates agentarium configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTARIUM_LLM_API_KEY.
const EnvPrefix = "AGENTARIUM"

// Config contains all configuration for the pipeline, CLI and server
type Config struct {
	LLM       LLMConfig       `json:"llm" mapstructure:"llm" validate:"required"`
	Pipeline  PipelineConfig  `json:"pipeline" mapstructure:"pipeline"`
	Prompts   PromptsConfig   `json:"prompts" mapstructure:"prompts"`
	Research  ResearchConfig  `json:"research" mapstructure:"research"`
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`

	// Logging
	LogLevel  string `json:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat string `json:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`
}

// LLMConfig configuration for the language model backend
type LLMConfig struct {
	Provider       string   `json:"provider" mapstructure:"provider" validate:"required,oneof=openai ollama"`
	Model          string   `json:"model" mapstructure:"model" validate:"required"`
	BaseURL        string   `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey         string   `json:"api_key,omitempty" mapstructure:"api_key"`
	Temperature    float32  `json:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
	TopP           float32  `json:"top_p,omitempty" mapstructure:"top_p" validate:"min=0,max=1"`
	Stop           []string `json:"stop,omitempty" mapstructure:"stop" validate:"max=4,dive,required"`
	MaxTokens      int      `json:"max_tokens" mapstructure:"max_tokens" validate:"min=0,max=200000"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds" validate:"min=1,max=3600"`
}

// MaxRevisionsLimit is the largest revision cap accepted from a config file,
// the command line or an API request.
const MaxRevisionsLimit = 10

// PipelineConfig controls the revision loop
type PipelineConfig struct {
	MaxRevisions     int    `json:"max_revisions" mapstructure:"max_revisions" validate:"min=0,max=10"`
	AcceptancePolicy string `json:"acceptance_policy" mapstructure:"acceptance_policy" validate:"required,oneof=keyword-match explicit-flag"`
}

// PromptsConfig locates template overrides; built-in templates fill the gaps
type PromptsConfig struct {
	Dir    string `json:"dir,omitempty" mapstructure:"dir"`
	Bundle string `json:"bundle,omitempty" mapstructure:"bundle"`
}

// ResearchConfig configures reference lookups for the researcher
type ResearchConfig struct {
	Wikipedia bool   `json:"wikipedia" mapstructure:"wikipedia"`
	Language  string `json:"language" mapstructure:"language" validate:"omitempty,alpha,max=12"`
	Sentences int    `json:"sentences" mapstructure:"sentences" validate:"min=0,max=20"`
}

// RateLimitConfig configures the transport wrappers around the provider
type RateLimitConfig struct {
	RPS            float64 `json:"rps" mapstructure:"rps" validate:"min=0"`
	Burst          int     `json:"burst" mapstructure:"burst" validate:"min=0"`
	RetryMax       int     `json:"retry_max" mapstructure:"retry_max" validate:"min=0,max=10"`
	RetryBackoffMs int     `json:"retry_backoff_ms" mapstructure:"retry_backoff_ms" validate:"min=0"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address string `json:"address" mapstructure:"address" validate:"required"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "llama3.2",
			BaseURL:        "http://localhost:11434",
			Temperature:    0.7,
			MaxTokens:      2048,
			TimeoutSeconds: 300,
		},
		Pipeline: PipelineConfig{
			MaxRevisions:     2,
			AcceptancePolicy: "keyword-match",
		},
		Research: ResearchConfig{
			Wikipedia: false,
			Language:  "en",
			Sentences: 5,
		},
		RateLimit: RateLimitConfig{
			RPS:            0,
			Burst:          1,
			RetryMax:       2,
			RetryBackoffMs: 500,
		},
		Server: ServerConfig{
			Address: ":8080",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds the configuration from defaults, an optional file and
// AGENTARIUM_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromFile loads configuration from a JSON or YAML file
func LoadConfigFromFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}
	return Load(path)
}

// newViper returns a viper instance with every key registered, so that
// environment variables resolve even when no file sets the key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	defaults := map[string]any{
		"llm.provider":                d.LLM.Provider,
		"llm.model":                   d.LLM.Model,
		"llm.base_url":                d.LLM.BaseURL,
		"llm.api_key":                 d.LLM.APIKey,
		"llm.temperature":             d.LLM.Temperature,
		"llm.top_p":                   d.LLM.TopP,
		"llm.stop":                    d.LLM.Stop,
		"llm.max_tokens":              d.LLM.MaxTokens,
		"llm.timeout_seconds":         d.LLM.TimeoutSeconds,
		"pipeline.max_revisions":      d.Pipeline.MaxRevisions,
		"pipeline.acceptance_policy":  d.Pipeline.AcceptancePolicy,
		"prompts.dir":                 d.Prompts.Dir,
		"prompts.bundle":              d.Prompts.Bundle,
		"research.wikipedia":          d.Research.Wikipedia,
		"research.language":           d.Research.Language,
		"research.sentences":          d.Research.Sentences,
		"rate_limit.rps":              d.RateLimit.RPS,
		"rate_limit.burst":            d.RateLimit.Burst,
		"rate_limit.retry_max":        d.RateLimit.RetryMax,
		"rate_limit.retry_backoff_ms": d.RateLimit.RetryBackoffMs,
		"server.address":              d.Server.Address,
		"log_level":                   d.LogLevel,
		"log_format":                  d.LogFormat,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.api_key is required for provider openai without a base_url")
	}
	if c.Prompts.Dir != "" {
		info, err := os.Stat(c.Prompts.Dir)
		if err != nil {
			return fmt.Errorf("prompts.dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("prompts.dir is not a directory: %s", c.Prompts.Dir)
		}
	}
	return nil
}

// Timeout returns the per-request backend timeout
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the base retry delay
func (r RateLimitConfig) RetryBackoff() time.Duration {
	return time.Duration(r.RetryBackoffMs) * time.Millisecond
}

// SaveToFile saves the configuration to a file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Masked returns a copy with secrets replaced by asterisks
func (c *Config) Masked() Config {
	masked := *c
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = strings.Repeat("*", len(masked.LLM.APIKey))
	}
	return masked
}

// String returns a string representation of the config (with sensitive data masked)
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Masked(), "", "  ")
	return string(data)
}
