package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	flowerrors "github.com/randalmurphal/flowdesk/pkg/flowgraph/errors"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when neither the client nor the request names a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements Client with the OpenAI chat completions API.
// Any OpenAI-compatible endpoint works through WithBaseURL.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

// OpenAIOption configures OpenAIClient.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *openAIConfig) { c.temperature = t }
}

// WithTimeout bounds each Complete call. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAIClient creates a client authenticated with apiKey.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	cfg := openAIConfig{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		oc.BaseURL = cfg.baseURL
	}
	if cfg.httpClient != nil {
		oc.HTTPClient = cfg.httpClient
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.model,
		temperature: cfg.temperature,
		timeout:     cfg.timeout,
	}
}

// Model returns the default model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("complete", ErrEmptyResponse, true)
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Duration:     time.Since(start),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + ulid.Make().String()
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// buildRequest maps a CompletionRequest onto the chat completions wire format.
func (c *OpenAIClient) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	temperature := c.temperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(temperature),
		MaxTokens:   req.MaxTokens,
	}

	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(msg))
	}

	for _, tool := range req.Tools {
		var params any = json.RawMessage(`{"type":"object","properties":{}}`)
		if len(tool.Parameters) > 0 {
			params = tool.Parameters
		}
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	if rf := req.ResponseFormat; rf != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   rf.Name,
				Schema: rf.Schema,
				Strict: true,
			},
		}
	}

	return out
}

func toOpenAIMessage(msg Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	// The API accepts a name only on user and assistant turns; tool results
	// are correlated by ToolCallID instead.
	if msg.Role == RoleUser || msg.Role == RoleAssistant {
		out.Name = sanitizeName(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return out
}

// sanitizeName keeps the characters the API allows in a message name.
func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}

// convertError maps SDK errors onto flowerrors.HTTPError so they can be
// categorized without importing the SDK.
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		httpErr := &flowerrors.HTTPError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Endpoint:   "chat.completions",
			Err:        apiErr,
		}
		return NewError("complete", sentinelFor(httpErr), flowerrors.IsRetryable(httpErr))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		httpErr := &flowerrors.HTTPError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprint(reqErr.Err),
			Endpoint:   "chat.completions",
			Err:        reqErr,
		}
		return NewError("complete", sentinelFor(httpErr), flowerrors.IsRetryable(httpErr))
	}

	return NewError("complete", fmt.Errorf("%w: %w", ErrUnavailable, err), flowerrors.IsRetryable(err))
}

// sentinelFor attaches the matching sentinel to an HTTP failure.
func sentinelFor(httpErr *flowerrors.HTTPError) error {
	switch {
	case httpErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, httpErr)
	case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
		return fmt.Errorf("%w: %w", ErrInvalidRequest, httpErr)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, httpErr)
	}
}
