package venue_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	venue "arena-api/pkg/venue"
	_ "arena-api/pkg/venue/binance"
	_ "arena-api/pkg/venue/sim"
)

func TestLoadConfigAndBuildProviders(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("VENUE_API_KEY", "test-key")
	os.Setenv("VENUE_API_SECRET", "test-secret")
	t.Cleanup(func() {
		os.Unsetenv("VENUE_API_KEY")
		os.Unsetenv("VENUE_API_SECRET")
	})

	configYAML := `
default: binance_testnet
providers:
  binance_testnet:
    type: binance
    api_key: ${VENUE_API_KEY}
    api_secret: ${VENUE_API_SECRET}
    testnet: true
    timeout: 15s
    filters_ttl: 5m
  paper:
    type: sim
`
	path := filepath.Join(dir, "venue.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := venue.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Default != "binance_testnet" {
		t.Fatalf("unexpected default: %s", cfg.Default)
	}
	provider := cfg.Providers["binance_testnet"]
	if provider.APIKey != "test-key" {
		t.Fatalf("env expansion failed, got %q", provider.APIKey)
	}
	if provider.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout: %s", provider.Timeout)
	}
	if provider.FiltersTTL != 5*time.Minute {
		t.Fatalf("unexpected filters ttl: %s", provider.FiltersTTL)
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		t.Fatalf("BuildProviders error: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}

	name, _, err := cfg.DefaultProvider(providers)
	if err != nil {
		t.Fatalf("DefaultProvider error: %v", err)
	}
	if name != "binance_testnet" {
		t.Fatalf("unexpected default provider: %s", name)
	}
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
providers:
  live:
    type: binance
`
	path := filepath.Join(dir, "venue.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := venue.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
providers:
  bogus:
    type: nope
`
	path := filepath.Join(dir, "venue.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := venue.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
providers:
  paper:
    type: sim
    timeout: soon
`
	path := filepath.Join(dir, "venue.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := venue.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

// Guards the config file shipped in etc/ against drift: it must stay loadable
// and keep the paper venue as its default.
func TestMustLoadShippedConfig(t *testing.T) {
	cfg := venue.MustLoad()
	if cfg.Default != "sim" {
		t.Fatalf("shipped default = %q, want sim", cfg.Default)
	}
	if _, ok := cfg.Providers["sim"]; !ok {
		t.Fatal("shipped config lost its sim provider")
	}
}
