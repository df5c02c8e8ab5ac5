package config

import (
	"os"
	"path/filepath"
	"testing"

	_ "arena-api/pkg/venue/sim"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.DataPath = "./data"
	cfg.TTL = CacheTTL{Short: 10, Medium: 60, Long: 300}
	return cfg
}

func TestValidateEnv(t *testing.T) {
	tests := []struct {
		env     string
		wantErr bool
		isTest  bool
	}{
		{"test", false, true},
		{"dev", false, false},
		{"prod", false, false},
		{"", false, true},
		{"  PROD  ", false, false},
		{"staging", true, false},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.Env = tt.env
		err := cfg.Validate()
		if tt.wantErr {
			if err == nil {
				t.Fatalf("env %q: expected validation error", tt.env)
			}
			continue
		}
		if err != nil {
			t.Fatalf("env %q: unexpected error: %v", tt.env, err)
		}
		if got := cfg.IsTestEnv(); got != tt.isTest {
			t.Fatalf("env %q: IsTestEnv() = %v, want %v", tt.env, got, tt.isTest)
		}
	}
}

func TestValidateTTLAndDataPath(t *testing.T) {
	cfg := validConfig()
	cfg.TTL.Medium = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ttl.medium validation error")
	}

	cfg = validConfig()
	cfg.DataPath = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected dataPath validation error")
	}
}

func TestLoadResolvesPathsAndDefaults(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "app.yaml")
	doc := "Name: arena-test\nHost: 127.0.0.1\nPort: 0\n"
	if err := os.WriteFile(main, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MainPath() != main {
		t.Fatalf("MainPath() = %q, want %q", cfg.MainPath(), main)
	}
	if cfg.BaseDir() != dir {
		t.Fatalf("BaseDir() = %q, want %q", cfg.BaseDir(), dir)
	}
	if cfg.Env != "test" {
		t.Fatalf("Env default = %q, want test", cfg.Env)
	}
	if cfg.TTL.Short != 10 || cfg.TTL.Medium != 60 || cfg.TTL.Long != 300 {
		t.Fatalf("TTL defaults not applied: %+v", cfg.TTL)
	}
	if cfg.LLM.Value != nil || cfg.Venue.Value != nil || cfg.Market.Value != nil || cfg.Arena.Value != nil {
		t.Fatal("sections without files must stay nil")
	}
}

// TestLoadShippedConfig loads the real etc/ tree, so a drifted section file
// or a renamed prompt template fails here instead of at boot.
func TestLoadShippedConfig(t *testing.T) {
	t.Setenv("ARENA_LLM_API_KEY", "smoke-test-key")

	cfg, err := Load(filepath.Join("..", "..", "etc", "arena.yaml"))
	if err != nil {
		t.Fatalf("Load etc/arena.yaml: %v", err)
	}

	if cfg.Name != "arena-api" {
		t.Fatalf("Name = %q", cfg.Name)
	}
	if !cfg.IsTestEnv() {
		t.Fatal("shipped config must default to the test environment")
	}

	if cfg.LLM.Value == nil || cfg.Venue.Value == nil || cfg.Market.Value == nil || cfg.Arena.Value == nil {
		t.Fatalf("shipped sections not hydrated: llm=%v venue=%v market=%v arena=%v",
			cfg.LLM.Value != nil, cfg.Venue.Value != nil, cfg.Market.Value != nil, cfg.Arena.Value != nil)
	}
	if cfg.Venue.Value.Default != "sim" {
		t.Fatalf("venue default = %q, want sim", cfg.Venue.Value.Default)
	}
	if len(cfg.Arena.Value.Agents) == 0 {
		t.Fatal("shipped roster is empty")
	}
	if cfg.LLM.Value.APIKey != "smoke-test-key" {
		t.Fatalf("llm api key not taken from environment, got %q", cfg.LLM.Value.APIKey)
	}

	// The panicking variant loads the same file.
	if got := MustLoad(filepath.Join("..", "..", "etc", "arena.yaml")); got.Name != cfg.Name {
		t.Fatalf("MustLoad Name = %q, want %q", got.Name, cfg.Name)
	}
}
