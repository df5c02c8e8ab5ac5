package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"arena-api/pkg/venue"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"

	defaultHTTPTimeout      = 10 * time.Second
	defaultRecvWindow       = 5 * time.Second
	defaultFiltersTTL       = 10 * time.Minute
	defaultRetryBackoff     = 200 * time.Millisecond
	defaultCorrelationDepth = 10
)

var _ venue.Venue = (*Client)(nil)

// Client talks to the Binance USDⓈ-M futures REST API. It implements
// venue.Venue. Public market-data endpoints are unsigned; account and order
// endpoints carry an HMAC signature over the query string.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *log.Logger
	clock      func() time.Time
	recvWindow time.Duration

	// Per-request retry budget for transient failures. Order placement is
	// never retried; the reconciler repairs the gap instead.
	transientRetries int

	// Number of recent orders inspected per symbol when back-correlating
	// client order ids onto open positions.
	correlationDepth int

	filtersMu      sync.RWMutex
	filters        map[string]venue.SymbolFilters
	filtersTTL     time.Duration
	filtersLastRef time.Time
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLogger attaches a custom logger (defaults to log.Default()).
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source (primarily for testing).
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRecvWindow sets the signed-request receive window.
func WithRecvWindow(window time.Duration) Option {
	return func(c *Client) {
		if window > 0 {
			c.recvWindow = window
		}
	}
}

// WithFiltersTTL sets the time-to-live for the symbol filter directory.
func WithFiltersTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.filtersTTL = ttl
		}
	}
}

// WithCorrelationDepth sets how many recent orders are scanned per symbol
// when restoring client order ids on open positions.
func WithCorrelationDepth(depth int) Option {
	return func(c *Client) {
		if depth > 0 {
			c.correlationDepth = depth
		}
	}
}

// NewClient constructs a futures REST client.
func NewClient(apiKey, apiSecret string, testnet bool, opts ...Option) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("binance: api key and secret are required")
	}

	client := &Client{
		baseURL:          mainnetBaseURL,
		apiKey:           apiKey,
		apiSecret:        apiSecret,
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
		logger:           log.Default(),
		clock:            time.Now,
		recvWindow:       defaultRecvWindow,
		transientRetries: 1,
		correlationDepth: defaultCorrelationDepth,
		filters:          make(map[string]venue.SymbolFilters),
		filtersTTL:       defaultFiltersTTL,
	}
	if testnet {
		client.baseURL = testnetBaseURL
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	return client, nil
}

// doPublic performs an unsigned GET with the transient retry budget.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values, result interface{}) error {
	query := ""
	if len(params) > 0 {
		query = "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path+query, nil, true, result)
}

// doSigned performs a signed request. Retryable controls whether transient
// failures are retried; order placement passes false.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values, retryable bool, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	signed := signQuery(params, c.apiSecret, c.clock(), c.recvWindow)
	headers := http.Header{"X-MBX-APIKEY": []string{c.apiKey}}
	return c.do(ctx, method, path+"?"+signed, headers, retryable, result)
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, headers http.Header, retryable bool, result interface{}) error {
	attempts := 1
	if retryable {
		attempts += c.transientRetries
	}

	var lastErr error
	backoff := defaultRetryBackoff
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doOnce(ctx, method, pathAndQuery, headers, result)
		if err == nil {
			return nil
		}
		if !venue.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, pathAndQuery string, headers http.Header, result interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("binance: do request: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("binance: read response: %w", readErr)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, body)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("binance: decode response: %w", err)
		}
	}
	return nil
}

// decodeAPIError maps a non-2xx response to a venue error. 4xx carries the
// venue's own code and message; everything else surfaces as a plain error so
// the transport layer treats it as transient.
func decodeAPIError(status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)
	if status >= 400 && status < 500 {
		msg := parsed.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return &venue.APIError{Status: status, Code: parsed.Code, Message: msg}
	}
	return &venue.APIError{Status: status, Code: parsed.Code, Message: fmt.Sprintf("http status %d: %s", status, strings.TrimSpace(string(body)))}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
