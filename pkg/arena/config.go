package arena

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"arena-api/pkg/account"
	"arena-api/pkg/confkit"
	"arena-api/pkg/risk"
)

// Defaults applied when the YAML omits a field.
const (
	DefaultCycleInterval       = 5 * time.Minute
	DefaultCycleSlack          = 10 * time.Second
	DefaultInitialBalance      = 10000.0
	DefaultMaxOpenPositions    = 5
	DefaultMaxLeverage         = 20
	DefaultMinTradeSize        = 10.0
	DefaultMaxTradeSize        = 100000.0
	DefaultStopLossPctMin      = 0.1
	DefaultStopLossPctMax      = 25.0
	DefaultTakeProfitPctMin    = 0.1
	DefaultTakeProfitPctMax    = 100.0
	DefaultRejectionSampleRate = 0.25
	DefaultRecentTrades        = 20
	DefaultEventBuffer         = 64
)

// symbolsEnvVar overrides the configured symbol universe when set. The value
// is a comma-separated list and wins over the YAML unconditionally.
const symbolsEnvVar = "ARENA_SYMBOLS"

var (
	symbolPattern  = regexp.MustCompile(`^[A-Z0-9]+$`)
	agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// AgentConfig declares one competing agent.
type AgentConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	PromptFile  string   `yaml:"prompt_file"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ArenaConfig holds the competition-wide settings shared by every agent.
type ArenaConfig struct {
	CycleIntervalRaw string `yaml:"cycle_interval"`
	CycleSlackRaw    string `yaml:"cycle_slack"`

	// Parsed forms of the raw duration strings above.
	CycleInterval time.Duration `yaml:"-"`
	CycleSlack    time.Duration `yaml:"-"`

	Symbols []string `yaml:"symbols"`

	InitialBalance   float64 `yaml:"initial_balance"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	MaxLeverage      int     `yaml:"max_leverage"`
	MinTradeSize     float64 `yaml:"min_trade_size"`
	MaxTradeSize     float64 `yaml:"max_trade_size"`

	StopLossPctMin   float64 `yaml:"stop_loss_pct_min"`
	StopLossPctMax   float64 `yaml:"stop_loss_pct_max"`
	TakeProfitPctMin float64 `yaml:"take_profit_pct_min"`
	TakeProfitPctMax float64 `yaml:"take_profit_pct_max"`

	RejectionSampleRate float64 `yaml:"rejection_sample_rate"`
	RecentTrades        int     `yaml:"recent_trades"`
	EventBuffer         int     `yaml:"event_buffer"`
}

// Config is the full arena file: one arena block plus the agent roster.
type Config struct {
	Arena  ArenaConfig   `yaml:"arena"`
	Agents []AgentConfig `yaml:"agents"`

	baseDir string
}

// LoadConfig reads and validates the arena configuration at path. Relative
// prompt paths resolve against the file's directory.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open arena config: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f, filepath.Dir(path))
}

// MustLoad loads etc/agents.yaml from the project root and panics on failure.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/agents.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader decodes, defaults, expands and validates a config.
func LoadConfigFromReader(r io.Reader, baseDir string) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read arena config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal arena config: %w", err)
	}
	cfg.baseDir = baseDir

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.expandFields()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment values that win over the YAML.
func (c *Config) applyEnvOverrides() {
	if raw, ok := os.LookupEnv(symbolsEnvVar); ok && strings.TrimSpace(raw) != "" {
		parts := strings.Split(raw, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			c.Arena.Symbols = symbols
		}
	}
}

func (c *Config) applyDefaults() {
	a := &c.Arena
	if a.CycleIntervalRaw == "" {
		a.CycleIntervalRaw = DefaultCycleInterval.String()
	}
	if a.CycleSlackRaw == "" {
		a.CycleSlackRaw = DefaultCycleSlack.String()
	}
	if a.InitialBalance == 0 {
		a.InitialBalance = DefaultInitialBalance
	}
	if a.MaxOpenPositions == 0 {
		a.MaxOpenPositions = DefaultMaxOpenPositions
	}
	if a.MaxLeverage == 0 {
		a.MaxLeverage = DefaultMaxLeverage
	}
	if a.MinTradeSize == 0 {
		a.MinTradeSize = DefaultMinTradeSize
	}
	if a.MaxTradeSize == 0 {
		a.MaxTradeSize = DefaultMaxTradeSize
	}
	if a.StopLossPctMin == 0 {
		a.StopLossPctMin = DefaultStopLossPctMin
	}
	if a.StopLossPctMax == 0 {
		a.StopLossPctMax = DefaultStopLossPctMax
	}
	if a.TakeProfitPctMin == 0 {
		a.TakeProfitPctMin = DefaultTakeProfitPctMin
	}
	if a.TakeProfitPctMax == 0 {
		a.TakeProfitPctMax = DefaultTakeProfitPctMax
	}
	if a.RejectionSampleRate == 0 {
		a.RejectionSampleRate = DefaultRejectionSampleRate
	}
	if a.RecentTrades == 0 {
		a.RecentTrades = DefaultRecentTrades
	}
	if a.EventBuffer == 0 {
		a.EventBuffer = DefaultEventBuffer
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.Arena.CycleInterval, err = parsePositiveDuration(c.Arena.CycleIntervalRaw, "arena.cycle_interval"); err != nil {
		return err
	}
	if c.Arena.CycleSlack, err = parsePositiveDuration(c.Arena.CycleSlackRaw, "arena.cycle_slack"); err != nil {
		return err
	}
	return nil
}

func parsePositiveDuration(raw, field string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", field, raw)
	}
	return d, nil
}

// expandFields trims whitespace, expands ${ENV} references and resolves
// relative prompt paths against the config directory.
func (c *Config) expandFields() {
	for i := range c.Arena.Symbols {
		c.Arena.Symbols[i] = strings.ToUpper(strings.TrimSpace(c.Arena.Symbols[i]))
	}
	for i := range c.Agents {
		ag := &c.Agents[i]
		ag.ID = strings.TrimSpace(ag.ID)
		ag.Name = strings.TrimSpace(ag.Name)
		ag.Model = strings.TrimSpace(os.ExpandEnv(ag.Model))
		ag.PromptFile = resolvePath(c.baseDir, strings.TrimSpace(os.ExpandEnv(ag.PromptFile)))
	}
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate rejects configurations the scheduler or risk layer cannot run.
func (c *Config) Validate() error {
	a := c.Arena
	if a.CycleInterval < 10*time.Second {
		return fmt.Errorf("arena.cycle_interval %s too short, minimum 10s", a.CycleInterval)
	}
	if a.CycleSlack >= a.CycleInterval {
		return fmt.Errorf("arena.cycle_slack %s must be shorter than cycle_interval %s", a.CycleSlack, a.CycleInterval)
	}
	if len(a.Symbols) == 0 {
		return fmt.Errorf("arena.symbols cannot be empty")
	}
	symSeen := make(map[string]struct{}, len(a.Symbols))
	for i, s := range a.Symbols {
		if !symbolPattern.MatchString(s) {
			return fmt.Errorf("arena.symbols[%d] %q must match %s", i, s, symbolPattern)
		}
		if _, dup := symSeen[s]; dup {
			return fmt.Errorf("arena.symbols[%d] %q duplicated", i, s)
		}
		symSeen[s] = struct{}{}
	}
	if a.InitialBalance <= 0 {
		return fmt.Errorf("arena.initial_balance must be positive, got %v", a.InitialBalance)
	}
	if a.RejectionSampleRate < 0 || a.RejectionSampleRate > 1 {
		return fmt.Errorf("arena.rejection_sample_rate must be in [0, 1], got %v", a.RejectionSampleRate)
	}
	if a.RecentTrades < 0 {
		return fmt.Errorf("arena.recent_trades cannot be negative, got %d", a.RecentTrades)
	}
	if err := c.RiskLimits().Validate(); err != nil {
		return err
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	idSeen := make(map[string]struct{}, len(c.Agents))
	for i, ag := range c.Agents {
		if ag.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if !agentIDPattern.MatchString(ag.ID) {
			return fmt.Errorf("agents[%d].id %q must match %s", i, ag.ID, agentIDPattern)
		}
		if _, dup := idSeen[ag.ID]; dup {
			return fmt.Errorf("agents[%d].id %q duplicated", i, ag.ID)
		}
		idSeen[ag.ID] = struct{}{}
		if err := tagFits(ag.ID, a.Symbols); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if ag.Model == "" {
			return fmt.Errorf("agents[%d].model is required", i)
		}
		if ag.PromptFile == "" {
			return fmt.Errorf("agents[%d].prompt_file is required", i)
		}
		if _, err := os.Stat(ag.PromptFile); err != nil {
			return fmt.Errorf("agents[%d].prompt_file %q not accessible: %w", i, ag.PromptFile, err)
		}
		if ag.Temperature != nil && (*ag.Temperature < 0 || *ag.Temperature > 2) {
			return fmt.Errorf("agents[%d].temperature must be in [0, 2], got %v", i, *ag.Temperature)
		}
		if ag.MaxTokens != nil && *ag.MaxTokens <= 0 {
			return fmt.Errorf("agents[%d].max_tokens must be positive, got %d", i, *ag.MaxTokens)
		}
	}
	return nil
}

// AccountConfig converts the arena block into per-agent account settings.
func (c *Config) AccountConfig() account.Config {
	return account.Config{
		InitialBalance:   decimal.NewFromFloat(c.Arena.InitialBalance),
		MaxOpenPositions: c.Arena.MaxOpenPositions,
		MaxLeverage:      c.Arena.MaxLeverage,
		MinTradeSize:     decimal.NewFromFloat(c.Arena.MinTradeSize),
		MaxTradeSize:     decimal.NewFromFloat(c.Arena.MaxTradeSize),
	}
}

// RiskLimits converts the arena block into the validator's limit set.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		Symbols:          c.Arena.Symbols,
		MaxOpenPositions: c.Arena.MaxOpenPositions,
		MaxLeverage:      c.Arena.MaxLeverage,
		MinTradeSize:     decimal.NewFromFloat(c.Arena.MinTradeSize),
		MaxTradeSize:     decimal.NewFromFloat(c.Arena.MaxTradeSize),
		StopLossPctMin:   decimal.NewFromFloat(c.Arena.StopLossPctMin),
		StopLossPctMax:   decimal.NewFromFloat(c.Arena.StopLossPctMax),
		TakeProfitPctMin: decimal.NewFromFloat(c.Arena.TakeProfitPctMin),
		TakeProfitPctMax: decimal.NewFromFloat(c.Arena.TakeProfitPctMax),
	}
}

// EnabledAgents returns the roster entries that should compete.
func (c *Config) EnabledAgents() []AgentConfig {
	out := make([]AgentConfig, 0, len(c.Agents))
	for _, ag := range c.Agents {
		if ag.IsEnabled() {
			out = append(out, ag)
		}
	}
	return out
}
