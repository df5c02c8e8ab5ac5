package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// LLMClient is the behaviour the decision pipeline depends on. Production
// code uses *Client; tests substitute scripted fakes.
type LLMClient interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamResponse, error)
	ChatStructured(ctx context.Context, req *ChatRequest, target interface{}) (interface{}, error)
	GetConfig() *Config
	Close() error
}

var _ LLMClient = (*Client)(nil)

// Client talks to an OpenAI-compatible gateway through the official SDK. One
// client is shared by every agent; per-agent differences live entirely in the
// request (model alias, temperature, prompts).
type Client struct {
	cfg        *Config
	api        *openai.Client
	logger     Logger
	retry      *RetryPolicy
	httpClient *http.Client
}

// Option customises client construction.
type Option func(*Client)

// WithLogger replaces the default logx-backed logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy replaces the default backoff policy.
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithHTTPClient substitutes the transport, mainly for recorded tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPI injects a pre-built SDK client, bypassing cfg-derived construction.
func WithAPI(api *openai.Client) Option {
	return func(c *Client) { c.api = api }
}

// NewClient validates cfg and builds a gateway client from it.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NewLogger(cfg.LogLevel)
	}
	if c.retry == nil {
		c.retry = NewRetryPolicy(RetrySettings{Attempts: cfg.MaxRetries})
	}
	if c.api == nil {
		// Retries are owned by the retry policy; the SDK's built-in retry
		// would multiply attempts underneath it.
		sdkOpts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		}
		if cfg.Timeout > 0 {
			sdkOpts = append(sdkOpts, option.WithRequestTimeout(cfg.Timeout))
		}
		if c.httpClient != nil {
			sdkOpts = append(sdkOpts, option.WithHTTPClient(c.httpClient))
		}
		api := openai.NewClient(sdkOpts...)
		c.api = &api
	}
	return c, nil
}

// Chat runs one synchronous completion, retrying transient gateway failures.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	params, modelID, err := c.completionParams(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var completion *openai.ChatCompletion
	err = c.retry.Execute(ctx, func() error {
		out, callErr := c.api.Chat.Completions.New(ctx, params)
		if callErr != nil {
			return callErr
		}
		completion = out
		return nil
	})
	if err != nil {
		c.logger.Error(ctx, fmt.Errorf("chat completion: %w", err), Fields{"model": modelID})
		return nil, err
	}

	resp := fromCompletion(completion)
	c.logger.Info(ctx, "chat completion", Fields{
		"model":      modelID,
		"latency_ms": time.Since(started).Milliseconds(),
		"tokens_in":  resp.Usage.PromptTokens,
		"tokens_out": resp.Usage.CompletionTokens,
	})
	return resp, nil
}

// ChatStream opens a streaming completion. The channel closes when the
// stream ends; a mid-stream failure is logged and truncates the stream.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamResponse, error) {
	params, modelID, err := c.completionParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, params)
	if stream == nil {
		return nil, errors.New("llm: streaming unsupported by gateway")
	}

	out := make(chan StreamResponse)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			select {
			case out <- fromChunk(stream.Current()):
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			c.logger.Error(ctx, fmt.Errorf("chat stream: %w", err), Fields{"model": modelID})
		}
	}()
	return out, nil
}

// ChatStructured derives a JSON schema from target, forces the gateway to
// honor it and decodes the reply into target.
func (c *Client) ChatStructured(ctx context.Context, req *ChatRequest, target interface{}) (interface{}, error) {
	val := reflect.ValueOf(target)
	if target == nil || val.Kind() != reflect.Ptr || val.IsNil() {
		return nil, errors.New("llm: structured target must be a non-nil pointer")
	}

	schema, err := GenerateSchema(target)
	if err != nil {
		return nil, err
	}
	strict := true

	structured := *req
	structured.ResponseFormat = &ResponseFormat{
		Type:   "json_schema",
		Name:   strings.ToLower(reflect.Indirect(val).Type().Name()),
		Schema: schema,
		Strict: &strict,
	}

	resp, err := c.Chat(ctx, &structured)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: structured completion returned no choices")
	}
	if err := ParseStructured(strings.TrimSpace(resp.Choices[0].Message.Content), target); err != nil {
		return nil, err
	}
	return target, nil
}

// GetConfig returns a copy of the active configuration.
func (c *Client) GetConfig() *Config {
	return c.cfg.Clone()
}

// Close drops idle connections held by an injected transport.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

// completionParams resolves the model alias and lowers a ChatRequest into SDK
// params, layering request overrides on the alias defaults.
func (c *Client) completionParams(req *ChatRequest) (openai.ChatCompletionNewParams, string, error) {
	var zero openai.ChatCompletionNewParams
	if req == nil {
		return zero, "", errors.New("llm: request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return zero, "", errors.New("llm: request requires at least one message")
	}

	alias := strings.TrimSpace(req.Model)
	if alias == "" {
		alias = c.cfg.DefaultModel
	}
	modelCfg, ok := c.cfg.Model(alias)
	if !ok {
		modelCfg = ModelConfig{ModelName: alias}
	}
	modelID := ResolveModelID(alias, modelCfg)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messageUnion(req.Messages),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if modelCfg.Temperature != nil {
		params.Temperature = openai.Float(*modelCfg.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	} else if modelCfg.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*modelCfg.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	} else if modelCfg.TopP != nil {
		params.TopP = openai.Float(*modelCfg.TopP)
	}

	format, err := formatParam(req.ResponseFormat)
	if err != nil {
		return zero, "", err
	}
	if format != nil {
		params.ResponseFormat = *format
	}
	return params, modelID, nil
}

func messageUnion(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	union := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			union = append(union, openai.SystemMessage(m.Content))
		case "assistant":
			union = append(union, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			union = append(union, openai.UserMessage(m.Content))
		}
	}
	return union
}

func formatParam(rf *ResponseFormat) (*openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	if rf == nil || rf.Type == "" || strings.EqualFold(rf.Type, "text") {
		return nil, nil
	}

	switch strings.ToLower(rf.Type) {
	case "json_object":
		obj := shared.NewResponseFormatJSONObjectParam()
		return &openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &obj}, nil

	case "json_schema":
		schema, ok := rf.Schema.(map[string]interface{})
		if !ok {
			return nil, errors.New("llm: json_schema format requires a map schema")
		}
		name := rf.Name
		if name == "" {
			name = "structured_output"
		}
		inner := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   name,
			Schema: schema,
		}
		if rf.Strict != nil {
			inner.Strict = openai.Bool(*rf.Strict)
		}
		if desc := strings.TrimSpace(rf.Description); desc != "" {
			inner.Description = openai.String(desc)
		}
		outer := shared.ResponseFormatJSONSchemaParam{JSONSchema: inner}
		outer.Type = outer.Type.Default()
		return &openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONSchema: &outer}, nil

	default:
		return nil, fmt.Errorf("llm: unsupported response format %q", rf.Type)
	}
}

func fromCompletion(completion *openai.ChatCompletion) *ChatResponse {
	if completion == nil {
		return nil
	}
	resp := &ChatResponse{
		ID:      completion.ID,
		Model:   completion.Model,
		Created: completion.Created,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, Choice{
			Index:        int(choice.Index),
			FinishReason: choice.FinishReason,
			Message: Message{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
		})
	}
	return resp
}

func fromChunk(chunk openai.ChatCompletionChunk) StreamResponse {
	resp := StreamResponse{
		ID:      chunk.ID,
		Model:   chunk.Model,
		Created: chunk.Created,
	}
	if chunk.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     int(chunk.Usage.PromptTokens),
			CompletionTokens: int(chunk.Usage.CompletionTokens),
			TotalTokens:      int(chunk.Usage.TotalTokens),
		}
	}
	for _, choice := range chunk.Choices {
		resp.Choices = append(resp.Choices, StreamChoice{
			Index:        int(choice.Index),
			FinishReason: choice.FinishReason,
			Delta: Delta{
				Role:    choice.Delta.Role,
				Content: choice.Delta.Content,
			},
		})
	}
	return resp
}
