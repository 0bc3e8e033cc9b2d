package support

import (
	"encoding/json"
	"strings"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
)

// DefaultMaxRetries is the number of query reformulations the knowledge
// agent may attempt before accepting its best answer.
const DefaultMaxRetries = 3

// KnowledgeAuthor is the author name of knowledge agent replies.
const KnowledgeAuthor = "Knowledge"

// FallbackAnswer is returned when no answer was ever generated.
const FallbackAnswer = "I'm sorry, I couldn't find an answer to that in our help articles."

// Verdict is the evaluator's judgment of a generated answer.
type Verdict string

// Verdicts.
const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// RetrievalState is the private state of one knowledge lookup.
type RetrievalState struct {
	Question    string
	Query       string
	Documents   []retrieval.Passage
	Answer      string
	Evaluation  Verdict
	Attempt     int
	Cycles      int
	UserContext map[string]any
}

// Degraded reports whether the answer was accepted without passing
// evaluation.
func (s RetrievalState) Degraded() bool {
	return s.Evaluation != VerdictPass
}

func retrievalSchema() *flowgraph.Schema[RetrievalState] {
	return flowgraph.NewSchema(
		flowgraph.OverwriteField("query", func(s *RetrievalState) *string { return &s.Query }),
		flowgraph.OverwriteField("documents", func(s *RetrievalState) *[]retrieval.Passage { return &s.Documents }),
		flowgraph.OverwriteField("answer", func(s *RetrievalState) *string { return &s.Answer }),
		flowgraph.OverwriteField("evaluation", func(s *RetrievalState) *Verdict { return &s.Evaluation }),
		flowgraph.IncrementField("attempt", func(s *RetrievalState) *int { return &s.Attempt }),
		flowgraph.IncrementField("cycles", func(s *RetrievalState) *int { return &s.Cycles }),
	)
}

// KnowledgeAgent answers general questions from the knowledge base. It
// retrieves, answers from the retrieved context, grades the answer, and
// rewrites the query and tries again while the grade is fail and retries
// remain.
type KnowledgeAgent struct {
	client     llm.Client
	retriever  retrieval.Retriever
	model      string
	limit      int
	maxRetries int
	metrics    observability.MetricsRecorder
	graph      *flowgraph.CompiledGraph[RetrievalState]
}

// KnowledgeOption configures a KnowledgeAgent.
type KnowledgeOption func(*KnowledgeAgent)

// WithMaxRetries sets the reformulation budget. Negative values are ignored.
func WithMaxRetries(n int) KnowledgeOption {
	return func(k *KnowledgeAgent) {
		if n >= 0 {
			k.maxRetries = n
		}
	}
}

// WithRetrievalLimit sets the number of passages fetched per cycle.
func WithRetrievalLimit(n int) KnowledgeOption {
	return func(k *KnowledgeAgent) {
		if n > 0 {
			k.limit = n
		}
	}
}

// WithKnowledgeModel overrides the client's default model.
func WithKnowledgeModel(model string) KnowledgeOption {
	return func(k *KnowledgeAgent) { k.model = model }
}

// WithKnowledgeMetrics records one retrieval cycle per evaluation.
func WithKnowledgeMetrics(m observability.MetricsRecorder) KnowledgeOption {
	return func(k *KnowledgeAgent) {
		if m != nil {
			k.metrics = m
		}
	}
}

// NewKnowledgeAgent creates a knowledge agent.
//
// Panics if client or retriever is nil.
func NewKnowledgeAgent(client llm.Client, retriever retrieval.Retriever, opts ...KnowledgeOption) *KnowledgeAgent {
	if client == nil {
		panic("support: knowledge agent client cannot be nil")
	}
	if retriever == nil {
		panic("support: knowledge agent retriever cannot be nil")
	}

	k := &KnowledgeAgent{
		client:     client,
		retriever:  retriever,
		limit:      retrieval.DefaultLimit,
		maxRetries: DefaultMaxRetries,
		metrics:    observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(k)
	}

	graph, err := flowgraph.NewGraph(retrievalSchema()).
		AddNode("retrieve", k.retrieve).
		AddNode("generate", k.generate).
		AddNode("evaluate", k.evaluate).
		AddNode("reformulate", k.reformulate).
		AddEdge("retrieve", "generate").
		AddEdge("generate", "evaluate").
		AddConditionalEdge("evaluate", flowgraph.NewRouter(k.nextAfterEvaluate, "accept", "retry"), map[string]string{
			"accept": flowgraph.END,
			"retry":  "reformulate",
		}).
		AddEdge("reformulate", "retrieve").
		SetEntry("retrieve").
		Compile()
	if err != nil {
		panic("support: knowledge graph: " + err.Error())
	}
	k.graph = graph
	return k
}

// Lookup runs the self-correction loop for question.
func (k *KnowledgeAgent) Lookup(ctx flowgraph.Context, question string, userContext map[string]any) (RetrievalState, error) {
	start := RetrievalState{
		Question:    question,
		Query:       question,
		UserContext: userContext,
	}
	return k.graph.Run(ctx, start,
		flowgraph.WithGraphName("knowledge"),
		// Four nodes per retried cycle, three for the last one.
		flowgraph.WithMaxIterations(4*(k.maxRetries+1)),
	)
}

// Node answers the latest user message and appends one reply.
func (k *KnowledgeAgent) Node() flowgraph.NodeFunc[Conversation] {
	return func(ctx flowgraph.Context, c Conversation) (flowgraph.Update, error) {
		final, err := k.Lookup(ctx, c.LastUserMessage(), c.UserContext)
		if err != nil {
			return nil, err
		}
		answer := final.Answer
		if strings.TrimSpace(answer) == "" {
			answer = FallbackAnswer
		}
		if final.Degraded() {
			ctx.Logger().Warn("knowledge answer accepted without passing evaluation",
				"attempt", final.Attempt,
				"cycles", final.Cycles)
		}
		return flowgraph.Update{FieldMessages: llm.AssistantText(KnowledgeAuthor, answer)}, nil
	}
}

func (k *KnowledgeAgent) nextAfterEvaluate(_ flowgraph.Context, s RetrievalState) string {
	if s.Evaluation == VerdictPass || s.Attempt >= k.maxRetries {
		return "accept"
	}
	return "retry"
}

func (k *KnowledgeAgent) retrieve(ctx flowgraph.Context, s RetrievalState) (flowgraph.Update, error) {
	spanCtx, span := observability.StartRetrievalSpan(ctx, s.Query, s.Attempt)
	docs, err := k.retriever.Retrieve(spanCtx, s.Query, k.limit)
	observability.EndSpanWithError(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, capability("retrieve", "knowledge_base", err)
		}
		// A failed search is an empty one; generate and evaluate still run
		// so the loop can reformulate.
		ctx.Logger().Warn("knowledge search failed, continuing without documents",
			"query", s.Query,
			"attempt", s.Attempt,
			"error", err)
		docs = nil
	}
	if docs == nil {
		docs = []retrieval.Passage{}
	}
	return flowgraph.Update{"documents": docs}, nil
}

func (k *KnowledgeAgent) generate(ctx flowgraph.Context, s RetrievalState) (flowgraph.Update, error) {
	prompt, err := generatePrompt.Render(map[string]any{
		"user_context": s.UserContext,
		"question":     s.Question,
		"context":      retrieval.JoinContents(s.Documents),
	})
	if err != nil {
		return nil, err
	}
	resp, err := k.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages:     []llm.Message{llm.UserText(s.Question)},
		Model:        k.model,
	})
	if err != nil {
		return nil, capability("generate", "knowledge.answer", err)
	}
	return flowgraph.Update{"answer": strings.TrimSpace(resp.Content)}, nil
}

type verdictResponse struct {
	Verdict string `json:"verdict"`
}

// evaluate grades the answer. An unreadable verdict counts as fail.
func (k *KnowledgeAgent) evaluate(ctx flowgraph.Context, s RetrievalState) (flowgraph.Update, error) {
	prompt, err := evaluatePrompt.Render(map[string]any{
		"question": s.Question,
		"answer":   s.Answer,
	})
	if err != nil {
		return nil, err
	}
	resp, err := k.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt:   prompt,
		Messages:       []llm.Message{llm.UserText(s.Question)},
		Model:          k.model,
		ResponseFormat: verdictFormat,
	})
	if err != nil {
		return nil, capability("generate", "knowledge.evaluate", err)
	}

	verdict := parseVerdict(resp.Content)
	observability.LogRetrievalCycle(ctx.Logger(), s.Attempt, len(s.Documents), string(verdict))
	k.metrics.RecordRetrievalCycle(ctx, verdict == VerdictPass)
	return flowgraph.Update{"evaluation": verdict, "cycles": 1}, nil
}

func (k *KnowledgeAgent) reformulate(ctx flowgraph.Context, s RetrievalState) (flowgraph.Update, error) {
	prompt, err := reformulatePrompt.Render(map[string]any{
		"question": s.Question,
		"query":    s.Query,
	})
	if err != nil {
		return nil, err
	}
	resp, err := k.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages:     []llm.Message{llm.UserText(s.Query)},
		Model:        k.model,
	})
	if err != nil {
		return nil, capability("generate", "knowledge.reformulate", err)
	}

	query := strings.TrimSpace(resp.Content)
	if query == "" {
		query = s.Query
	}
	return flowgraph.Update{"query": query, "attempt": 1}, nil
}

func parseVerdict(content string) Verdict {
	content = strings.TrimSpace(content)
	var v verdictResponse
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		v.Verdict = content
	}
	if Verdict(strings.ToLower(strings.TrimSpace(v.Verdict))) == VerdictPass {
		return VerdictPass
	}
	return VerdictFail
}

var verdictFormat = &llm.ResponseFormat{
	Name: "answer_evaluation",
	Schema: json.RawMessage(`{"type":"object","properties":{"verdict":{"type":"string","enum":["pass","fail"]}},` +
		`"required":["verdict"],"additionalProperties":false}`),
}
