package support

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowdesk/pkg/tools"
)

// DefaultToolLoopBudget bounds reason/act rounds per specialist turn.
const DefaultToolLoopBudget = 8

// toolLoop is the state of one specialist turn.
type toolLoop struct {
	Messages    []llm.Message
	UserContext map[string]any
	Rounds      int
}

func toolLoopSchema() *flowgraph.Schema[toolLoop] {
	return flowgraph.NewSchema(
		flowgraph.AppendField("messages", func(s *toolLoop) *[]llm.Message { return &s.Messages }),
		flowgraph.IncrementField("rounds", func(s *toolLoop) *int { return &s.Rounds }),
	)
}

// Specialist answers a ticket by alternating between asking the model
// (reason) and running the tools it requests (act) until the model replies
// without tool calls.
type Specialist struct {
	name         string
	instructions string
	client       llm.Client
	invoker      tools.Invoker
	defs         []llm.Tool
	model        string
	budget       int
	metrics      observability.MetricsRecorder
	graph        *flowgraph.CompiledGraph[toolLoop]
}

// SpecialistOption configures a Specialist.
type SpecialistOption func(*Specialist)

// WithToolLoopBudget caps reason/act rounds. Non-positive values are ignored.
func WithToolLoopBudget(n int) SpecialistOption {
	return func(s *Specialist) {
		if n > 0 {
			s.budget = n
		}
	}
}

// WithSpecialistModel overrides the client's default model.
func WithSpecialistModel(model string) SpecialistOption {
	return func(s *Specialist) { s.model = model }
}

// WithSpecialistMetrics records tool call metrics.
func WithSpecialistMetrics(m observability.MetricsRecorder) SpecialistOption {
	return func(s *Specialist) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSpecialist creates a specialist named name that may call toolNames
// from registry. name is recorded as the author of its replies.
func NewSpecialist(name, instructions string, client llm.Client, registry *tools.Registry, toolNames []string, opts ...SpecialistOption) (*Specialist, error) {
	if client == nil {
		return nil, fmt.Errorf("specialist %s: nil client", name)
	}
	sub, err := registry.Subset(toolNames...)
	if err != nil {
		return nil, fmt.Errorf("specialist %s: %w", name, err)
	}
	defs, err := sub.Definitions()
	if err != nil {
		return nil, fmt.Errorf("specialist %s: %w", name, err)
	}

	s := &Specialist{
		name:         name,
		instructions: instructions,
		client:       client,
		invoker:      sub,
		defs:         defs,
		budget:       DefaultToolLoopBudget,
		metrics:      observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	graph, err := flowgraph.NewGraph(toolLoopSchema()).
		AddNode("reason", s.reason).
		AddNode("act", s.act).
		AddConditionalEdge("reason", flowgraph.NewRouter(nextAfterReason, "act", "done"), map[string]string{
			"act":  "act",
			"done": flowgraph.END,
		}).
		AddEdge("act", "reason").
		SetEntry("reason").
		Compile()
	if err != nil {
		return nil, fmt.Errorf("specialist %s: %w", name, err)
	}
	s.graph = graph
	return s, nil
}

// Name returns the author name of the specialist's replies.
func (s *Specialist) Name() string {
	return s.name
}

// Answer runs one turn and returns the messages it produced: every
// assistant reply and tool result, in order.
func (s *Specialist) Answer(ctx flowgraph.Context, c Conversation) ([]llm.Message, error) {
	start := toolLoop{Messages: c.Messages, UserContext: c.UserContext}
	final, err := s.graph.Run(ctx, start,
		flowgraph.WithGraphName("specialist."+s.name),
		// Each round is two nodes; one extra for the closing reason.
		flowgraph.WithMaxIterations(2*s.budget+2),
	)
	if err != nil {
		return nil, err
	}
	return final.Messages[len(c.Messages):], nil
}

// Node adapts Answer to the conversation graph.
func (s *Specialist) Node() flowgraph.NodeFunc[Conversation] {
	return func(ctx flowgraph.Context, c Conversation) (flowgraph.Update, error) {
		msgs, err := s.Answer(ctx, c)
		if err != nil {
			return nil, err
		}
		return flowgraph.Update{FieldMessages: msgs}, nil
	}
}

func nextAfterReason(_ flowgraph.Context, s toolLoop) string {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].HasToolCalls() {
		return "act"
	}
	return "done"
}

func (s *Specialist) reason(ctx flowgraph.Context, st toolLoop) (flowgraph.Update, error) {
	prompt, err := specialistPrompt.Render(map[string]any{
		"instructions": s.instructions,
		"name":         s.name,
		"user_context": st.UserContext,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages:     st.Messages,
		Model:        s.model,
		Tools:        s.defs,
	})
	if err != nil {
		return nil, capability("generate", s.name, err)
	}
	return flowgraph.Update{"messages": resp.Message(s.name)}, nil
}

// act runs the pending tool calls one at a time, in request order. A
// failing tool becomes an error result for the model to read.
func (s *Specialist) act(ctx flowgraph.Context, st toolLoop) (flowgraph.Update, error) {
	if st.Rounds >= s.budget {
		return nil, &LoopBudgetError{Specialist: s.name, Budget: s.budget}
	}

	calls := st.Messages[len(st.Messages)-1].ToolCalls
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		spanCtx, span := observability.StartToolSpan(ctx, call.Name, call.ID)
		start := time.Now()
		out, err := s.invoker.Invoke(spanCtx, call.Name, call.Arguments)
		elapsed := time.Since(start)
		observability.EndSpanWithError(span, err)

		observability.LogToolCall(ctx.Logger(), call.Name, call.ID, elapsed, err)
		s.metrics.RecordToolCall(ctx, call.Name, elapsed, err)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out = "Error: " + err.Error()
		}
		results = append(results, llm.ToolResult(call, out))
	}

	ctx.Logger().Debug("tool round completed",
		slog.String("specialist", s.name),
		slog.Int("round", st.Rounds+1),
		slog.Int("calls", len(calls)))
	return flowgraph.Update{"messages": results, "rounds": 1}, nil
}
