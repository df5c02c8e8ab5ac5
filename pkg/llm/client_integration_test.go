//go:build integration

package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"arena-api/pkg/confkit"
)

// TestMain seeds the environment from .env so ARENA_LLM_API_KEY can be
// injected locally and in CI.
func TestMain(m *testing.M) {
	confkit.LoadDotenvOnce()
	os.Exit(m.Run())
}

func integrationClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv(envAPIKey) == "" {
		t.Skip("ARENA_LLM_API_KEY not set; skipping live gateway test")
	}

	// Everything except the fallback model comes from the environment.
	cfg, err := LoadConfigFromReader(strings.NewReader(
		"default_model: openai/gpt-4o-mini\ntimeout: 15s\nmax_retries: 2\nlog_level: error\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegrationChat(t *testing.T) {
	client := integrationClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	resp, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: "user", Content: "Reply with one word: pong."}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		t.Fatalf("empty completion: %#v", resp)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Errorf("usage not reported: %+v", resp.Usage)
	}
}

func TestIntegrationChatStructured(t *testing.T) {
	client := integrationClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var verdict struct {
		Sentiment string  `json:"sentiment" description:"bullish, bearish or neutral"`
		Score     float64 `json:"score" description:"confidence between 0 and 1"`
	}
	_, err := client.ChatStructured(ctx, &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "Classify market commentary."},
			{Role: "user", Content: "Funding is deeply negative while price holds support."},
		},
	}, &verdict)
	if err != nil {
		t.Fatalf("ChatStructured: %v", err)
	}
	if verdict.Sentiment == "" {
		t.Fatal("sentiment not populated")
	}
}
