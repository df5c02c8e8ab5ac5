package binance

import (
	"net/http"

	"arena-api/pkg/venue"
)

func init() {
	venue.Register("binance", func(name string, cfg *venue.ProviderConfig) (venue.Venue, error) {
		var opts []Option
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.FiltersTTL > 0 {
			opts = append(opts, WithFiltersTTL(cfg.FiltersTTL))
		}
		return NewClient(cfg.APIKey, cfg.APISecret, cfg.Testnet, opts...)
	})
}
