package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/support"
)

// MessageRequest is the body of POST /v1/threads/:id/messages.
type MessageRequest struct {
	Message     string         `json:"message" binding:"required"`
	UserContext map[string]any `json:"user_context,omitempty"`
}

// MessageResponse lists what one turn appended.
type MessageResponse struct {
	ThreadID string        `json:"thread_id"`
	Messages []llm.Message `json:"messages"`
	Replies  []llm.Message `json:"replies"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type server struct {
	engine     *support.Engine
	newContext func(context.Context) flowgraph.Context
	logger     *slog.Logger
}

// newRouter exposes the engine over HTTP. metrics, when non-nil, is served
// at /metrics.
func newRouter(s *server, metrics http.Handler, tracing bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	if tracing {
		r.Use(otelgin.Middleware("supportdesk"))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1")
	v1.POST("/threads/:id/messages", s.handleMessage)
	v1.GET("/threads/:id", s.handleThread)
	return r
}

func (s *server) handleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	threadID := c.Param("id")
	msgs, err := s.engine.RunWithContext(s.newContext(c.Request.Context()), threadID, req.Message, req.UserContext)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{
		ThreadID: threadID,
		Messages: msgs,
		Replies:  support.Replies(msgs),
	})
}

func (s *server) handleThread(c *gin.Context) {
	conv, ok, err := s.engine.Conversation(s.newContext(c.Request.Context()), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "thread not found", Code: "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (s *server) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, support.ErrEmptyMessage), errors.Is(err, flowgraph.ErrThreadIDRequired):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, checkpoint.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrUnavailable):
		c.Header("Retry-After", "5")
		status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, support.ErrRouteDecision), errors.Is(err, flowgraph.ErrCapability):
		status, code = http.StatusBadGateway, "UPSTREAM"
	case errors.Is(err, support.ErrLoopBudgetExceeded):
		status, code = http.StatusUnprocessableEntity, "LOOP_BUDGET"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("turn failed", "thread_id", c.Param("id"), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds())
}
