package llm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"arena-api/pkg/confkit"
)

// Defaults applied when etc/llm.yaml leaves a field unset.
const (
	defaultBaseURL    = "https://openrouter.ai/api/v1"
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 1
	defaultLogLevel   = "info"
)

// Environment variables that override file values when set.
const (
	envAPIKey       = "ARENA_LLM_API_KEY"
	envBaseURL      = "ARENA_LLM_BASE_URL"
	envDefaultModel = "ARENA_LLM_DEFAULT_MODEL"
	envTimeout      = "ARENA_LLM_TIMEOUT"
	envMaxRetries   = "ARENA_LLM_MAX_RETRIES"
)

// Config holds runtime settings for the LLM client.
type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	LogLevel     string
	Models       map[string]ModelConfig
}

// ModelConfig carries per-alias request defaults. The cost rates are USD per
// million tokens as published by the gateway; zero rates disable the
// per-call cost estimate.
type ModelConfig struct {
	Provider          string   `yaml:"provider"`
	ModelName         string   `yaml:"model_name"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	MaxTokens         *int     `yaml:"max_tokens,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	InputCostPerMTok  float64  `yaml:"input_cost_per_mtok,omitempty"`
	OutputCostPerMTok float64  `yaml:"output_cost_per_mtok,omitempty"`
}

// EstimateCost converts a token count into an approximate USD spend using
// the configured gateway rates. An unpriced model estimates zero.
func (m ModelConfig) EstimateCost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1e6*m.InputCostPerMTok + float64(tokensOut)/1e6*m.OutputCostPerMTok
}

// configFile mirrors the yaml document. The timeout stays textual until
// environment overrides have been applied.
type configFile struct {
	BaseURL      string                 `yaml:"base_url"`
	APIKey       string                 `yaml:"api_key"`
	DefaultModel string                 `yaml:"default_model"`
	Timeout      string                 `yaml:"timeout"`
	MaxRetries   int                    `yaml:"max_retries"`
	LogLevel     string                 `yaml:"log_level"`
	Models       map[string]ModelConfig `yaml:"models"`
}

// LoadConfig reads configuration from the yaml file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open llm config: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// MustLoad reads LLM configuration from etc/llm.yaml under the project root
// and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/llm.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader decodes a yaml document from r, applies defaults and
// environment overrides, and validates the result.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var file configFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode llm config: %w", err)
	}
	return file.build()
}

func (f configFile) build() (*Config, error) {
	cfg := &Config{
		BaseURL:      overlay(f.BaseURL, envBaseURL, defaultBaseURL),
		APIKey:       overlay(f.APIKey, envAPIKey, ""),
		DefaultModel: overlay(f.DefaultModel, envDefaultModel, ""),
		MaxRetries:   f.MaxRetries,
		LogLevel:     f.LogLevel,
		Models:       f.Models,
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if raw := os.Getenv(envMaxRetries); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxRetries = v
		}
	}

	cfg.Timeout = defaultTimeout
	if raw := overlay(f.Timeout, envTimeout, ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("llm config: invalid timeout %q: %w", raw, err)
		}
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llm config: api_key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("llm config: base_url is required")
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		return errors.New("llm config: default_model is required")
	}
	if c.Timeout <= 0 {
		return errors.New("llm config: timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("llm config: max_retries cannot be negative")
	}
	return nil
}

// Model returns the configuration for the given model alias.
func (c *Config) Model(alias string) (ModelConfig, bool) {
	mc, ok := c.Models[alias]
	return mc, ok
}

// Clone returns a copy of the configuration with its own Models map.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Models != nil {
		cp.Models = make(map[string]ModelConfig, len(c.Models))
		for alias, mc := range c.Models {
			cp.Models[alias] = mc
		}
	}
	return &cp
}

// overlay expands $VAR references in the file value, lets envKey override
// it, and falls back to fallback when both resolve empty.
func overlay(fileVal, envKey, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if v := os.ExpandEnv(fileVal); strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
