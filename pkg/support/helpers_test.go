package support_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
	"github.com/randalmurphal/flowdesk/pkg/support"
	"github.com/randalmurphal/flowdesk/pkg/tools"
	"github.com/stretchr/testify/require"
)

// deskModel scripts every agent of the desk behind one client. Requests
// are told apart by response format, tool list, and prompt.
type deskModel struct {
	mu sync.Mutex

	route    string
	verdicts []string
	answers  []string

	// toolTurns are the specialist's tool requests, one entry per reason
	// step. When exhausted the specialist echoes the last tool result.
	toolTurns [][]llm.ToolCall

	supervisorCalls  int
	specialistCalls  int
	generateCalls    int
	evaluateCalls    int
	reformulateCalls int
}

func (m *deskModel) client() *llm.MockClient {
	return llm.NewMockClient("").WithCompleteFunc(m.complete)
}

func (m *deskModel) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case req.ResponseFormat != nil && req.ResponseFormat.Name == "route_decision":
		m.supervisorCalls++
		return &llm.CompletionResponse{Content: fmt.Sprintf(`{"route":%q}`, m.route)}, nil

	case req.ResponseFormat != nil && req.ResponseFormat.Name == "answer_evaluation":
		v := pick(m.verdicts, m.evaluateCalls, "fail")
		m.evaluateCalls++
		return &llm.CompletionResponse{Content: fmt.Sprintf(`{"verdict":%q}`, v)}, nil

	case len(req.Tools) > 0:
		turn := m.specialistCalls
		m.specialistCalls++
		if turn < len(m.toolTurns) {
			return &llm.CompletionResponse{ToolCalls: m.toolTurns[turn]}, nil
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role == llm.RoleTool {
			return &llm.CompletionResponse{Content: "Done. " + last.Content}, nil
		}
		return &llm.CompletionResponse{Content: "How can I help?"}, nil

	case strings.Contains(req.SystemPrompt, "Rewrite it as"):
		m.reformulateCalls++
		q := fmt.Sprintf("rewritten query %d", m.reformulateCalls)
		return &llm.CompletionResponse{Content: q}, nil

	default:
		a := pick(m.answers, m.generateCalls, "I don't know.")
		m.generateCalls++
		return &llm.CompletionResponse{Content: a}, nil
	}
}

func pick(script []string, i int, fallback string) string {
	if i < len(script) {
		return script[i]
	}
	if len(script) > 0 {
		return script[len(script)-1]
	}
	return fallback
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// stubTools registers every desk tool with canned results.
func stubTools(t *testing.T) *tools.Registry {
	t.Helper()
	canned := map[string]string{
		tools.ToolLookupCustomer:       "User ID: a4ab87, Name: Alice Kingsley, Blocked: false",
		tools.ToolGetUserSubscription:  "Sub ID: S1, Status: active, Tier: premium, Quota: 8",
		tools.ToolCancelSubscription:   "Success: Subscription S1 cancelled.",
		tools.ToolAvailableExperiences: "- ID: E01 | Sunset Yoga | Slots: 12",
		tools.ToolUserReservations:     "- ResID: R100 | ExpID: E01 | Status: confirmed",
		tools.ToolCreateReservation:    "Success: Reservation 1a2b3c4d confirmed.",
		tools.ToolSearchKnowledgeBase:  "--- How to cancel ---\nCancel any time from settings.",
	}
	reg := tools.NewRegistry()
	for name, out := range canned {
		require.NoError(t, reg.Register(tools.Tool{
			Name:        name,
			Description: "stub " + name,
			Handler: func(context.Context, tools.Args) (string, error) {
				return out, nil
			},
		}))
	}
	return reg
}

func testRetriever() retrieval.Retriever {
	return retrieval.NewMemoryRetriever(retrieval.DemoArticles()...)
}

func newTestEngine(t *testing.T, model *deskModel, store checkpoint.Store) *support.Engine {
	t.Helper()
	workflow, err := support.Build(support.Deps{
		Client:    model.client(),
		Tools:     stubTools(t),
		Retriever: testRetriever(),
	}, support.Settings{})
	require.NoError(t, err)
	return support.NewEngine(workflow, store)
}

func testContext() flowgraph.Context {
	return flowgraph.NewContext(context.Background())
}
