package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arena-api/pkg/venue"
)

func TestNewClientValidation(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewClient("", "secret", false)
		require.Error(t, err)

		_, err = NewClient("key", "", false)
		require.Error(t, err)
	})

	t.Run("mainnet default", func(t *testing.T) {
		client, err := NewClient("key", "secret", false)
		require.NoError(t, err)
		require.Equal(t, mainnetBaseURL, client.baseURL)
	})

	t.Run("testnet", func(t *testing.T) {
		client, err := NewClient("key", "secret", true)
		require.NoError(t, err)
		require.Equal(t, testnetBaseURL, client.baseURL)
	})
}

func TestClientOptions(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	logger := log.New(&strings.Builder{}, "", 0)

	client, err := NewClient("key", "secret", false,
		WithBaseURL("https://example.com/"),
		WithLogger(logger),
		WithClock(func() time.Time { return fixed }),
		WithRecvWindow(9*time.Second),
		WithFiltersTTL(time.Minute),
		WithCorrelationDepth(25),
	)
	require.NoError(t, err)

	require.Equal(t, "https://example.com", client.baseURL)
	require.Equal(t, logger, client.logger)
	require.Equal(t, fixed, client.clock())
	require.Equal(t, 9*time.Second, client.recvWindow)
	require.Equal(t, time.Minute, client.filtersTTL)
	require.Equal(t, 25, client.correlationDepth)
}

func TestSignQuery(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	values := url.Values{"symbol": []string{"BTCUSDT"}}

	signed := signQuery(values, "top-secret", now, 5*time.Second)

	parsed, err := url.ParseQuery(signed)
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", parsed.Get("symbol"))
	require.Equal(t, "1700000000000", parsed.Get("timestamp"))
	require.Equal(t, "5000", parsed.Get("recvWindow"))

	payload := signed[:strings.LastIndex(signed, "&signature=")]
	mac := hmac.New(sha256.New, []byte("top-secret"))
	mac.Write([]byte(payload))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), parsed.Get("signature"))
}

func TestDoRetriesTransient(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		failFirst := calls == 1
		mu.Unlock()

		if failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":-1000,"msg":"internal error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"42000.10","time":1700000000000}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false,
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	price, err := client.MarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "42000.1", price.String())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
}

func TestDoDoesNotRetryReject(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()

		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false,
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	_, err = client.MarkPrice(context.Background(), "NOPEUSDT")
	require.Error(t, err)
	require.True(t, venue.IsReject(err))
	require.False(t, venue.IsTransient(err))

	var apiErr *venue.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, -1121, apiErr.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false,
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.MarkPrice(ctx, "BTCUSDT")
	require.Error(t, err)
	require.False(t, venue.IsTransient(err))
}

func TestLogfNilLogger(t *testing.T) {
	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)

	client.logger = nil
	require.NotPanics(t, func() {
		client.logf("message %s", "ok")
	})
}
