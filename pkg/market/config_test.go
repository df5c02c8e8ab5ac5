package market

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader(t *testing.T) {
	data := `
ttl: "30s"
kline_interval: "1h"
kline_limit: 120
max_concurrent: 8
`
	cfg, err := LoadConfigFromReader(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.TTL)
	require.Equal(t, "1h", cfg.KlineInterval)
	require.Equal(t, 120, cfg.KlineLimit)
	require.Equal(t, 8, cfg.MaxConcurrent)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, defaultTTL, cfg.TTL)
	require.Equal(t, defaultKlineInterval, cfg.KlineInterval)
	require.Equal(t, defaultKlineLimit, cfg.KlineLimit)
	require.Equal(t, defaultMaxConcurrent, cfg.MaxConcurrent)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_MARKET_TTL", "45s")
	cfg, err := LoadConfigFromReader(strings.NewReader(`ttl: "${TEST_MARKET_TTL}"`))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.TTL)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader(`ttl: "soon"`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid ttl")
}

func TestLoadConfigRejectsShortKlineWindow(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader(`kline_limit: 20`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "indicator window")
}

func TestValidateRejectsNegativeTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = -time.Second
	require.Error(t, cfg.Validate())
}

// Guards the config file shipped in etc/ against drift.
func TestMustLoadShippedConfig(t *testing.T) {
	cfg := MustLoad()
	require.Equal(t, time.Minute, cfg.TTL)
	require.Equal(t, "4h", cfg.KlineInterval)
	require.GreaterOrEqual(t, cfg.KlineLimit, indicatorMinCloses)
}
