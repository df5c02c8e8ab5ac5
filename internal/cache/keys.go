// Package cache defines the Redis key schema and TTL policy shared by the
// persistence and read-model layers. Every key lives under the "arena:"
// namespace so one Redis instance can host several deployments side by side.
package cache

import (
	"strings"
	"time"

	"arena-api/internal/config"
)

const namespace = "arena"

// Fallbacks applied when a config bucket is left at zero.
const (
	fallbackShort  = 10 * time.Second
	fallbackMedium = time.Minute
	fallbackLong   = 5 * time.Minute
)

// Key assembles a namespaced Redis key from its segments. Blank segments
// are dropped so optional scopes collapse cleanly.
func Key(segments ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(seg)
	}
	return b.String()
}

// AccountKey stores the latest persisted account view of one agent.
func AccountKey(agentID string) string {
	return Key("account", agentID)
}

// PositionsHashKey holds the open-position map of one agent, keyed by symbol.
func PositionsHashKey(agentID string) string {
	return Key("positions", agentID)
}

// TradesRecentKey holds the most recent settled trades of one agent.
func TradesRecentKey(agentID string) string {
	return Key("trades", "recent", agentID)
}

// LeaderboardCacheKey stores the pre-rendered leaderboard payload.
func LeaderboardCacheKey() string {
	return Key("leaderboard", "cache")
}

// CycleLastKey caches the summary of the most recent completed cycle.
func CycleLastKey() string {
	return Key("cycle", "last")
}

// MarketSnapshotKey stores the latest persisted snapshot for one symbol.
func MarketSnapshotKey(symbol string) string {
	return Key("market", "snapshot", symbol)
}

// TTLSet maps the three config buckets onto the payload families the app
// caches. A bucket left at zero falls back to 10s/1m/5m; a negative value
// disables expiry for that bucket.
type TTLSet struct {
	short  time.Duration
	medium time.Duration
	long   time.Duration
}

// NewTTLSet converts config TTLs (whole seconds) into a TTLSet.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		short:  bucket(cfg.Short, fallbackShort),
		medium: bucket(cfg.Medium, fallbackMedium),
		long:   bucket(cfg.Long, fallbackLong),
	}
}

func bucket(seconds int, fallback time.Duration) time.Duration {
	switch {
	case seconds < 0:
		return 0
	case seconds == 0:
		return fallback
	default:
		return time.Duration(seconds) * time.Second
	}
}

// Account returns the TTL for per-agent account views.
func (t TTLSet) Account() time.Duration { return t.short }

// MarketSnapshot returns the TTL for persisted market snapshot payloads.
func (t TTLSet) MarketSnapshot() time.Duration { return t.short }

// Positions returns the TTL for positions hashes. Half the medium bucket
// keeps the hash fresher than the trade lists derived from it.
func (t TTLSet) Positions() time.Duration { return t.medium / 2 }

// TradesRecent returns the TTL for recent trade lists.
func (t TTLSet) TradesRecent() time.Duration { return t.medium }

// Leaderboard returns the TTL for the pre-rendered leaderboard.
func (t TTLSet) Leaderboard() time.Duration { return t.medium }

// CycleLast returns the TTL for last-cycle summaries.
func (t TTLSet) CycleLast() time.Duration { return t.medium }
