package flowgraph

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext_Defaults(t *testing.T) {
	ctx := NewContext(context.Background())

	assert.NotNil(t, ctx.Logger())
	assert.NotEmpty(t, ctx.RunID())
	assert.Empty(t, ctx.ThreadID())
	assert.Empty(t, ctx.NodeID())
}

func TestNewContext_UniqueRunIDs(t *testing.T) {
	a := NewContext(context.Background())
	b := NewContext(context.Background())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestNewContext_Options(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := NewContext(context.Background(),
		WithLogger(logger),
		WithContextRunID("run-1"),
		WithThreadID("t1"),
	)

	assert.Same(t, logger, ctx.Logger())
	assert.Equal(t, "run-1", ctx.RunID())
	assert.Equal(t, "t1", ctx.ThreadID())
}

func TestWithLogger_IgnoresNil(t *testing.T) {
	ctx := NewContext(context.Background(), WithLogger(nil))
	assert.NotNil(t, ctx.Logger())
}

func TestDerive(t *testing.T) {
	parent := NewContext(context.Background(), WithContextRunID("run-1"), WithThreadID("t1"))

	inner, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	child := Derive(parent, inner)
	assert.Equal(t, "run-1", child.RunID())
	assert.Equal(t, "t1", child.ThreadID())
	assert.Same(t, parent.Logger(), child.Logger())

	_, hasDeadline := child.Deadline()
	assert.True(t, hasDeadline)

	cancel()
	require.Error(t, child.Err())
	assert.NoError(t, parent.Err())
}

func TestWithNodeID(t *testing.T) {
	ec := NewContext(context.Background(), WithThreadID("t1")).(*executionContext)
	node := ec.withNodeID("triage")

	assert.Equal(t, "triage", node.NodeID())
	assert.Equal(t, ec.RunID(), node.RunID())
	assert.Equal(t, "t1", node.ThreadID())
	assert.Empty(t, ec.NodeID(), "parent is not mutated")
}
