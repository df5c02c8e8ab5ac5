package arena

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeTag(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()
	tag := ComposeTag("deepseek-chat", "BTCUSDT", at)
	assert.Equal(t, "deepseek-chat_BTCUSDT_1700000000000", tag)
	assert.LessOrEqual(t, len(tag), venueTagLimit)
}

func TestParseTagRoundTrip(t *testing.T) {
	at := time.UnixMilli(1714564800123).UTC()
	tag := ComposeTag("gpt-4o", "ETHUSDT", at)

	agentID, symbol, parsedAt, err := ParseTag(tag)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", agentID)
	assert.Equal(t, "ETHUSDT", symbol)
	assert.True(t, parsedAt.Equal(at))
}

func TestParseTagAgentWithUnderscores(t *testing.T) {
	agentID, symbol, at, err := ParseTag("AGENT_B_DOGEUSDT_1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "AGENT_B", agentID)
	assert.Equal(t, "DOGEUSDT", symbol)
	assert.Equal(t, int64(1700000000000), at.UnixMilli())
}

func TestParseTagRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no separators":        "BTCUSDT",
		"one separator":        "BTCUSDT_1700000000000",
		"empty agent":          "_BTCUSDT_1700000000000",
		"empty symbol":         "agent__1700000000000",
		"non-numeric millis":   "agent_BTCUSDT_notatime",
		"negative millis":      "agent_BTCUSDT_-5",
		"zero millis":          "agent_BTCUSDT_0",
		"trailing separator":   "agent_BTCUSDT_",
		"completely empty tag": "",
	}
	for name, tag := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := ParseTag(tag)
			assert.Error(t, err, "tag %q", tag)
		})
	}
}

func TestParseTagIgnoresForeignOrders(t *testing.T) {
	// Ids the venue's own UI generates do not parse as arena tags.
	_, _, _, err := ParseTag("web_3J9x")
	assert.Error(t, err)
}

func TestTagFits(t *testing.T) {
	symbols := []string{"BTCUSDT", "1000SHIBUSDT"}
	require.NoError(t, tagFits("short-id", symbols))

	long := "an-extremely-long-agent-identifier"
	err := tagFits(long, symbols)
	require.Error(t, err)
	assert.Contains(t, err.Error(), long)
}
