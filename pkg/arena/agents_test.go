package arena

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistrySortedOrder(t *testing.T) {
	cfg := writeTestConfig(t, "zulu", "alpha", "mike")

	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, reg.IDs())

	agents := reg.Agents()
	require.Len(t, agents, 3)
	assert.Equal(t, "alpha", agents[0].ID())
	assert.Equal(t, "zulu", agents[2].ID())
}

func TestNewRegistryRendersPersona(t *testing.T) {
	cfg := writeTestConfig(t, "alpha")

	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	agent, ok := reg.Get("alpha")
	require.True(t, ok)

	assert.Equal(t, "You are ALPHA. Trade BTCUSDT ETHUSDT DOGEUSDT with discipline.", agent.SystemPrompt())
	assert.NotEmpty(t, agent.PromptDigest())
	assert.Equal(t, "alpha", agent.Model())
	assert.Equal(t, "ALPHA", agent.Name())

	acct := agent.Account()
	require.NotNil(t, acct)
	assert.Equal(t, "alpha", acct.Snapshot().AgentID)
	assert.True(t, acct.Snapshot().Balance.Equal(dec("10000")))
}

func TestNewRegistrySkipsDisabledAgents(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"alpha", "beta"} {
		path := filepath.Join(dir, id+".tmpl")
		require.NoError(t, os.WriteFile(path, []byte("You are {{.Name}}."), 0o644))
	}

	raw := `arena:
  symbols: [BTCUSDT]
  initial_balance: 10000
agents:
  - id: alpha
    name: Alpha
    model: m-alpha
    prompt_file: alpha.tmpl
  - id: beta
    name: Beta
    model: m-beta
    prompt_file: beta.tmpl
    enabled: false
`

	cfg, err := LoadConfigFromReader(strings.NewReader(raw), dir)
	require.NoError(t, err)

	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("beta")
	assert.False(t, ok)
	_, ok = reg.Get("alpha")
	assert.True(t, ok)
}

func TestNewRegistryUnknownLookup(t *testing.T) {
	cfg := writeTestConfig(t, "alpha")
	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	_, ok := reg.Get("nobody")
	assert.False(t, ok)
}

func TestNewRegistryBadTemplate(t *testing.T) {
	cfg := writeTestConfig(t, "alpha")

	// The config loader only checks the file exists; a template that fails to
	// parse surfaces here.
	require.NoError(t, os.WriteFile(cfg.Agents[0].PromptFile, []byte("{{.Unclosed"), 0o644))

	_, err := NewRegistry(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent alpha")
}

func TestNewRegistryNilConfig(t *testing.T) {
	_, err := NewRegistry(nil)
	require.Error(t, err)
}
