package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/support"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(t *testing.T, client llm.Client, metrics http.Handler) *gin.Engine {
	t.Helper()
	a := testApp(t, client)
	return newRouter(&server{engine: a.engine, newContext: a.context, logger: discardLogger()}, metrics, false)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServer_MessageThenThread(t *testing.T) {
	r := testRouter(t, nil, nil)

	w := do(t, r, http.MethodPost, "/v1/threads/t1/messages", MessageRequest{Message: "Get me a human please"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.ThreadID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "Get me a human please", resp.Messages[0].Content)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, support.EscalationMessage, resp.Replies[0].Content)

	w = do(t, r, http.MethodGet, "/v1/threads/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conv support.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, support.RouteEscalate, conv.Route)
	assert.Len(t, conv.Messages, 2)
}

func TestServer_SpecialistUsesTools(t *testing.T) {
	r := testRouter(t, nil, nil)

	w := do(t, r, http.MethodPost, "/v1/threads/t2/messages", MessageRequest{
		Message: "What subscription tier am I on? alice.kingsley@wonderland.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 4)
	assert.Equal(t, llm.RoleTool, resp.Messages[2].Role)
	require.Len(t, resp.Replies, 1)
	assert.Contains(t, resp.Replies[0].Content, "User ID: a4ab87")
}

func TestServer_BadRequests(t *testing.T) {
	r := testRouter(t, nil, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing message", map[string]any{}},
		{"blank message", MessageRequest{Message: "   "}},
		{"wrong type", map[string]any{"message": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/v1/threads/t1/messages", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
		})
	}
}

func TestServer_ThreadNotFound(t *testing.T) {
	r := testRouter(t, nil, nil)
	w := do(t, r, http.MethodGet, "/v1/threads/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_UpstreamFailure(t *testing.T) {
	r := testRouter(t, llm.NewMockClient("").WithError(llm.ErrUnavailable), nil)

	w := do(t, r, http.MethodPost, "/v1/threads/t1/messages", MessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	// The failed turn left nothing behind.
	w = do(t, r, http.MethodGet, "/v1/threads/t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_InvalidRoute(t *testing.T) {
	r := testRouter(t, llm.NewMockClient(`{"route":"refunds"}`), nil)
	w := do(t, r, http.MethodPost, "/v1/threads/t1/messages", MessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UPSTREAM", resp.Code)
	assert.Contains(t, resp.Error, "refunds")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "flowdesk_graph_runs_total 1\n")
	})
	r := testRouter(t, nil, metrics)

	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flowdesk_graph_runs_total")

	noMetrics := testRouter(t, nil, nil)
	w = do(t, noMetrics, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
