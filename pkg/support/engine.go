package support

import (
	"strings"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
)

// Engine runs support turns against durable conversations.
type Engine struct {
	exec *flowgraph.Executor[Conversation]
}

// NewEngine wraps a compiled workflow and a checkpoint store.
func NewEngine(workflow *flowgraph.CompiledGraph[Conversation], store checkpoint.Store, opts ...flowgraph.ExecutorOption) *Engine {
	return &Engine{exec: flowgraph.NewExecutor(workflow, store, opts...)}
}

// Run appends userMessage to the thread and runs one turn. It returns the
// messages the turn appended, starting with the user message itself. On
// error nothing is persisted.
func (e *Engine) Run(ctx flowgraph.Context, threadID, userMessage string) ([]llm.Message, error) {
	return e.RunWithContext(ctx, threadID, userMessage, nil)
}

// RunWithContext is Run that also replaces the thread's user context. A
// nil userContext keeps the stored one.
func (e *Engine) RunWithContext(ctx flowgraph.Context, threadID, userMessage string, userContext map[string]any) ([]llm.Message, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}

	input := flowgraph.Update{
		FieldThreadID: threadID,
		FieldMessages: llm.UserText(userMessage),
	}
	if userContext != nil {
		input[FieldUserContext] = userContext
	}

	res, err := e.exec.Run(ctx, threadID, input)
	if err != nil {
		return nil, err
	}
	appended, _ := res.Delta[FieldMessages].([]llm.Message)
	return appended, nil
}

// Conversation returns the thread's persisted state.
func (e *Engine) Conversation(ctx flowgraph.Context, threadID string) (Conversation, bool, error) {
	return e.exec.State(ctx, threadID)
}

// Replies filters msgs down to the assistant text a customer should see.
func Replies(msgs []llm.Message) []llm.Message {
	var out []llm.Message
	for _, m := range msgs {
		if m.Role == llm.RoleAssistant && !m.HasToolCalls() && m.Content != "" {
			out = append(out, m)
		}
	}
	return out
}
