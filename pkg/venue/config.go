package venue

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

// Config captures configuration for one or more venue providers.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes how to construct one venue instance. String
// fields accept ${VAR} references resolved against the process environment,
// so credentials stay out of the file.
type ProviderConfig struct {
	Type      string `yaml:"type"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	Testnet   bool   `yaml:"testnet"`

	TimeoutRaw    string        `yaml:"timeout"`
	Timeout       time.Duration `yaml:"-"`
	FiltersTTLRaw string        `yaml:"filters_ttl"`
	FiltersTTL    time.Duration `yaml:"-"`
}

// LoadConfig reads venue configuration from disk.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open venue config: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// MustLoad reads venue configuration from the default project location and
// panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/venue.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader decodes, normalises and validates a venue config.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode venue config: %w", err)
	}
	for name, p := range cfg.Providers {
		if p == nil {
			p = &ProviderConfig{}
			cfg.Providers[name] = p
		}
		if err := p.normalise(name); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalise expands ${VAR} references in place and parses duration fields.
func (p *ProviderConfig) normalise(name string) error {
	for _, f := range []*string{&p.Type, &p.APIKey, &p.APISecret, &p.BaseURL, &p.TimeoutRaw, &p.FiltersTTLRaw} {
		*f = strings.TrimSpace(os.ExpandEnv(*f))
	}
	var err error
	if p.Timeout, err = optionalDuration(p.TimeoutRaw); err != nil {
		return fmt.Errorf("venue provider %s: timeout: %w", name, err)
	}
	if p.FiltersTTL, err = optionalDuration(p.FiltersTTLRaw); err != nil {
		return fmt.Errorf("venue provider %s: filters_ttl: %w", name, err)
	}
	return nil
}

// optionalDuration parses a duration that may be absent; zero means unset
// and leaves the provider on its built-in default.
func optionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// Validate ensures the provider map is non-empty and every entry is typed
// and buildable.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("venue config: providers cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("venue config: default provider %q not defined", c.Default)
		}
	}
	for name, p := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return errors.New("venue config: provider name cannot be empty")
		}
		if err := p.check(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) check(name string) error {
	if p == nil {
		return fmt.Errorf("venue config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("venue config: provider %s must specify type", name)
	}
	if _, ok := lookupBuilder(p.Type); !ok {
		return fmt.Errorf("venue config: provider %s has unsupported type %q", name, p.Type)
	}
	if strings.EqualFold(strings.TrimSpace(p.Type), "binance") && (p.APIKey == "" || p.APISecret == "") {
		return fmt.Errorf("venue config: provider %s requires api_key and api_secret", name)
	}
	return nil
}

// BuildProviders instantiates every configured venue through the registry.
func (c *Config) BuildProviders() (map[string]Venue, error) {
	out := make(map[string]Venue, len(c.Providers))
	for name, pc := range c.Providers {
		builder, ok := lookupBuilder(pc.Type)
		if !ok {
			return nil, fmt.Errorf("venue provider %s: unsupported type %q", name, pc.Type)
		}
		v, err := builder(name, pc)
		if err != nil {
			return nil, fmt.Errorf("venue provider %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// DefaultProvider returns the venue named by Default, or the sole provider
// when only one is configured.
func (c *Config) DefaultProvider(providers map[string]Venue) (string, Venue, error) {
	if c.Default != "" {
		v, ok := providers[c.Default]
		if !ok {
			return "", nil, fmt.Errorf("venue config: default provider %q not built", c.Default)
		}
		return c.Default, v, nil
	}
	if len(providers) == 1 {
		for name, v := range providers {
			return name, v, nil
		}
	}
	return "", nil, fmt.Errorf("venue config: default provider not set and %d providers configured", len(providers))
}
