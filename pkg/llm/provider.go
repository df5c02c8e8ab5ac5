package llm

import "strings"

// ResolveModelID expands a roster alias into the gateway's provider/model
// form. An alias that already contains a slash is passed through untouched;
// otherwise the alias's ModelConfig supplies the provider prefix and the
// real model name.
func ResolveModelID(alias string, cfg ModelConfig) string {
	alias = strings.TrimSpace(alias)
	if strings.Contains(alias, "/") {
		return alias
	}

	name := strings.TrimSpace(cfg.ModelName)
	if name == "" {
		name = alias
	}
	if provider := strings.TrimSpace(cfg.Provider); provider != "" && !strings.Contains(name, "/") {
		return provider + "/" + name
	}
	return name
}

// ParseModelID splits provider/model back into its halves. IDs without a
// provider prefix return an empty provider.
func ParseModelID(model string) (provider, name string) {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[:idx], model[idx+1:]
	}
	return "", model
}
