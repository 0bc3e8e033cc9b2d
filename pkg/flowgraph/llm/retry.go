package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	flowerrors "github.com/randalmurphal/flowdesk/pkg/flowgraph/errors"
)

// RetryClient retries transient failures of an inner Client with
// exponential backoff.
type RetryClient struct {
	inner  Client
	cfg    flowerrors.RetryConfig
	logger *slog.Logger
}

// NewRetryClient wraps inner. A nil logger disables retry logging.
func NewRetryClient(inner Client, cfg flowerrors.RetryConfig, logger *slog.Logger) *RetryClient {
	if inner == nil {
		panic("llm: retry client inner cannot be nil")
	}
	if cfg.RetryableFunc == nil {
		cfg.RetryableFunc = isRetryable
	}
	rc := &RetryClient{inner: inner, cfg: cfg, logger: logger}
	if logger != nil && cfg.OnRetry == nil {
		rc.cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Warn("llm call failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
	}
	return rc
}

// Complete implements Client.
func (c *RetryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	result := flowerrors.WithRetryContext(ctx, c.cfg, func(ctx context.Context) (*CompletionResponse, error) {
		return c.inner.Complete(ctx, req)
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Value, nil
}

// isRetryable honours an explicit Retryable flag and otherwise falls back to
// error categorization.
func isRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return flowerrors.IsRetryable(err)
}
