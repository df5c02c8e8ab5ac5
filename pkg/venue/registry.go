package venue

import (
	"strings"
	"sync"
)

// Builder constructs a Venue from one provider block.
type Builder func(name string, cfg *ProviderConfig) (Venue, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

// Register associates a builder with a provider type. Venue packages call it
// from init; a later registration for the same type replaces the earlier one.
func Register(typeName string, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normaliseType(typeName)] = builder
}

func lookupBuilder(typeName string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[normaliseType(typeName)]
	return b, ok
}

func normaliseType(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}
