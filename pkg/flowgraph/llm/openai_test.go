package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	flowerrors "github.com/randalmurphal/flowdesk/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI serves /v1/chat/completions with handler and records request bodies.
func fakeOpenAI(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func writeCompletion(w http.ResponseWriter, message map[string]any, finish string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	})
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "error", "code": status},
	})
}

func TestOpenAIClient_TextCompletion(t *testing.T) {
	srv, bodies := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{"role": "assistant", "content": "Hi there"}, "stop")
	})

	client := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"))
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a support agent.",
		Messages: []llm.Message{
			llm.UserText("Hello"),
			llm.AssistantText("Knowledge Agent", "Earlier answer"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, llm.TokenUsage{InputTokens: 12, OutputTokens: 5, TotalTokens: 17}, resp.Usage)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, llm.DefaultOpenAIModel, body["model"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "Knowledge_Agent", msgs[2].(map[string]any)["name"])
}

func TestOpenAIClient_ToolCalls(t *testing.T) {
	srv, bodies := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []any{
				map[string]any{
					"id":   "call_a",
					"type": "function",
					"function": map[string]any{
						"name":      "lookup_customer",
						"arguments": `{"email":"ann@example.com"}`,
					},
				},
				map[string]any{
					"type": "function",
					"function": map[string]any{
						"name":      "get_user_subscription",
						"arguments": `{"user_id":"u1"}`,
					},
				},
			},
		}, "tool_calls")
	})

	client := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"), llm.WithModel("gpt-4o"))
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			llm.UserText("cancel please"),
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "prev", Name: "lookup_customer", Arguments: json.RawMessage(`{}`)}}},
			llm.ToolResult(llm.ToolCall{ID: "prev", Name: "lookup_customer"}, "User not found."),
		},
		Tools: []llm.Tool{{
			Name:        "lookup_customer",
			Description: "Find a customer by email",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"}},"required":["email"]}`),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.ToolCalls[0].ID)
	assert.Equal(t, "lookup_customer", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"email":"ann@example.com"}`, string(resp.ToolCalls[0].Arguments))
	assert.NotEmpty(t, resp.ToolCalls[1].ID, "missing call IDs are synthesized")
	assert.Equal(t, "get_user_subscription", resp.ToolCalls[1].Name)

	body := (*bodies)[0]
	assert.Equal(t, "gpt-4o", body["model"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "lookup_customer", fn["name"])

	msgs := body["messages"].([]any)
	toolMsg := msgs[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "prev", toolMsg["tool_call_id"])
	_, hasName := toolMsg["name"]
	assert.False(t, hasName)
}

func TestOpenAIClient_ResponseFormat(t *testing.T) {
	srv, bodies := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, map[string]any{"role": "assistant", "content": `{"route":"escalate"}`}, "stop")
	})

	client := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"))
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserText("I want a human")},
		ResponseFormat: &llm.ResponseFormat{
			Name:   "route_decision",
			Schema: json.RawMessage(`{"type":"object","properties":{"route":{"type":"string","enum":["escalate"]}},"required":["route"],"additionalProperties":false}`),
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"route":"escalate"}`, resp.Content)

	rf := (*bodies)[0]["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	schema := rf["json_schema"].(map[string]any)
	assert.Equal(t, "route_decision", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestOpenAIClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		sentinel  error
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, llm.ErrRateLimited, true},
		{"server error", http.StatusBadGateway, llm.ErrUnavailable, true},
		{"unauthorized", http.StatusUnauthorized, llm.ErrInvalidRequest, false},
		{"bad request", http.StatusBadRequest, llm.ErrInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
				writeAPIError(w, tt.status, "nope")
			})

			client := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"))
			_, err := client.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{llm.UserText("x")},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.retryable, llmErr.Retryable)

			var httpErr *flowerrors.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
		})
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	})

	client := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestOpenAIClient_Timeout(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		time.Sleep(100 * time.Millisecond)
		writeCompletion(w, map[string]any{"role": "assistant", "content": "late"}, "stop")
	})

	client := llm.NewOpenAIClient("sk-test",
		llm.WithBaseURL(srv.URL+"/v1"),
		llm.WithTimeout(10*time.Millisecond))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.True(t, llmErr.Retryable, "a per-call timeout is worth retrying")
}

func TestRetryClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ map[string]any) {
		if calls.Add(1) < 3 {
			writeAPIError(w, http.StatusServiceUnavailable, "overloaded")
			return
		}
		writeCompletion(w, map[string]any{"role": "assistant", "content": "finally"}, "stop")
	})

	inner := llm.NewOpenAIClient("sk-test", llm.WithBaseURL(srv.URL+"/v1"))
	client := llm.NewRetryClient(inner, flowerrors.NewRetryConfig(
		flowerrors.WithMaxAttempts(3),
		flowerrors.WithInitialBackoff(time.Millisecond),
	), nil)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}
