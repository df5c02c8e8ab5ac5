package config

import (
	"os"
	"path/filepath"
	"testing"

	"arena-api/pkg/confkit"
	"arena-api/pkg/llm"
	"arena-api/pkg/venue"
	_ "arena-api/pkg/venue/sim"
)

// Section files carry their own ${VAR} placeholders which each loader
// expands independently of the main file's conf.UseEnv pass.
func TestHydrateExpandsSectionEnv(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(name, doc string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	llmPath := writeFile("llm.yaml", `
base_url: ${ROUTER_BASE_URL}
api_key: ${ROUTER_API_KEY}
default_model: deepseek
timeout: 2s
`)
	venuePath := writeFile("venue.yaml", `
default: paper
providers:
  paper:
    type: sim
    base_url: ${SIM_BASE}
    timeout: ${SIM_TIMEOUT}
    filters_ttl: ${SIM_FILTERS_TTL}
`)

	t.Setenv("ROUTER_BASE_URL", "https://router.example/api")
	t.Setenv("ROUTER_API_KEY", "test-key")
	t.Setenv("SIM_BASE", "https://sim.arena.local")
	t.Setenv("SIM_TIMEOUT", "7s")
	t.Setenv("SIM_FILTERS_TTL", "11s")
	// Clear the ARENA_LLM_* overrides so an ambient shell value cannot
	// shadow the placeholders above.
	t.Setenv("ARENA_LLM_BASE_URL", "")
	t.Setenv("ARENA_LLM_API_KEY", "")
	t.Setenv("ARENA_LLM_DEFAULT_MODEL", "")

	cfg := validConfig()
	cfg.baseDir = dir
	cfg.LLM = confkit.Section[llm.Config]{File: "llm.yaml"}
	cfg.Venue = confkit.Section[venue.Config]{File: "venue.yaml"}

	if err := cfg.hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if cfg.LLM.File != llmPath || cfg.Venue.File != venuePath {
		t.Fatalf("section paths not resolved: llm=%q venue=%q", cfg.LLM.File, cfg.Venue.File)
	}

	llmCfg := cfg.LLM.Value
	if llmCfg == nil {
		t.Fatal("llm section not hydrated")
	}
	if llmCfg.BaseURL != "https://router.example/api" || llmCfg.APIKey != "test-key" {
		t.Fatalf("llm env not expanded: base_url=%q api_key=%q", llmCfg.BaseURL, llmCfg.APIKey)
	}

	venueCfg := cfg.Venue.Value
	if venueCfg == nil {
		t.Fatal("venue section not hydrated")
	}
	p := venueCfg.Providers["paper"]
	if p == nil {
		t.Fatal("venue provider 'paper' missing")
	}
	if p.BaseURL != "https://sim.arena.local" {
		t.Fatalf("venue base_url not expanded, got %q", p.BaseURL)
	}
	if p.Timeout.String() != "7s" || p.FiltersTTL.String() != "11s" {
		t.Fatalf("venue durations not parsed: timeout=%s filters_ttl=%s", p.Timeout, p.FiltersTTL)
	}
}

func TestHydrateSkipsEmptySections(t *testing.T) {
	cfg := validConfig()
	cfg.baseDir = t.TempDir()

	if err := cfg.hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if cfg.LLM.Value != nil || cfg.Venue.Value != nil || cfg.Market.Value != nil || cfg.Arena.Value != nil {
		t.Fatal("sections without files must stay nil")
	}
}
