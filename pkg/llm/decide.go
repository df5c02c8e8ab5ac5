package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DecideRequest describes a single decision round-trip: one system prompt,
// one user prompt, no conversation history.
type DecideRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64
	MaxTokens    *int
}

// Transcript records what the model said and what it cost to ask. CostUSD is
// an estimate from the configured per-token rates, zero when the model alias
// carries no pricing.
type Transcript struct {
	Text       string  `json:"text"`
	Model      string  `json:"model"`
	ResponseID string  `json:"response_id,omitempty"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	LatencyMs  int64   `json:"latency_ms"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// Decide sends a system+user prompt pair and returns the raw assistant text
// together with token usage and wall-clock latency. The caller owns parsing;
// this layer never interprets the response body.
func Decide(ctx context.Context, client LLMClient, req DecideRequest) (*Transcript, error) {
	if client == nil {
		return nil, errors.New("llm: client cannot be nil")
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return nil, errors.New("llm: user prompt cannot be empty")
	}

	messages := make([]Message, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.UserPrompt})

	chatReq := &ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	start := time.Now()
	resp, err := client.Chat(ctx, chatReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("llm: decide: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: decide: completion returned no choices")
	}

	t := &Transcript{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		ResponseID: resp.ID,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		LatencyMs:  latency.Milliseconds(),
	}
	if cfg := client.GetConfig(); cfg != nil {
		if mc, ok := cfg.Model(req.Model); ok {
			t.CostUSD = mc.EstimateCost(t.TokensIn, t.TokensOut)
		}
	}
	return t, nil
}
