package market

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"arena-api/pkg/confkit"
)

// Defaults for an absent or sparse market section.
const (
	defaultTTL           = time.Minute
	defaultKlineInterval = "4h"
	defaultKlineLimit    = 100
	defaultMaxConcurrent = 4
)

// Config tunes the snapshot cache and the kline window behind the indicator
// set.
type Config struct {
	TTLRaw        string        `yaml:"ttl"`
	TTL           time.Duration `yaml:"-"`
	KlineInterval string        `yaml:"kline_interval"`
	KlineLimit    int           `yaml:"kline_limit"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// DefaultConfig returns the configuration used when no market section is
// supplied.
func DefaultConfig() *Config {
	return &Config{
		TTL:           defaultTTL,
		KlineInterval: defaultKlineInterval,
		KlineLimit:    defaultKlineLimit,
		MaxConcurrent: defaultMaxConcurrent,
	}
}

// LoadConfig reads market configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// MustLoad reads market configuration from the default project location and
// panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/market.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader decodes a market config, filling defaults for fields
// left unset.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalise resolves ${VAR} references, parses the TTL and fills defaults.
func (c *Config) normalise() error {
	c.TTLRaw = strings.TrimSpace(os.ExpandEnv(c.TTLRaw))
	c.KlineInterval = strings.TrimSpace(os.ExpandEnv(c.KlineInterval))

	switch {
	case c.TTLRaw != "":
		d, err := time.ParseDuration(c.TTLRaw)
		if err != nil {
			return fmt.Errorf("market config: invalid ttl %q: %w", c.TTLRaw, err)
		}
		c.TTL = d
	case c.TTL == 0:
		c.TTL = defaultTTL
	}
	if c.KlineInterval == "" {
		c.KlineInterval = defaultKlineInterval
	}
	if c.KlineLimit == 0 {
		c.KlineLimit = defaultKlineLimit
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	return nil
}

// Validate ensures the configuration can drive the snapshot service.
func (c *Config) Validate() error {
	switch {
	case c.TTL <= 0:
		return fmt.Errorf("market config: ttl must be positive, got %s", c.TTL)
	case strings.TrimSpace(c.KlineInterval) == "":
		return errors.New("market config: kline_interval cannot be empty")
	case c.KlineLimit <= 0:
		return fmt.Errorf("market config: kline_limit must be positive, got %d", c.KlineLimit)
	case c.KlineLimit < indicatorMinCloses:
		return fmt.Errorf("market config: kline_limit %d is below the indicator window %d", c.KlineLimit, indicatorMinCloses)
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("market config: max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}
