package support_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
	"github.com/randalmurphal/flowdesk/pkg/support"
	"github.com/randalmurphal/flowdesk/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cultPassRegistry(t *testing.T) (*tools.CultPass, *tools.Registry) {
	t.Helper()
	cp, err := tools.OpenCultPass(filepath.Join(t.TempDir(), "cultpass.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })
	require.NoError(t, cp.Seed(context.Background(), tools.DemoData()))

	kb := retrieval.NewMemoryRetriever(retrieval.DemoArticles()...)
	reg := tools.NewRegistry().MustRegister(cp.Tools()...).MustRegister(tools.KnowledgeSearch(kb, 2))
	return cp, reg
}

func TestDesk_SubscriptionSpecialistAgainstCultPass(t *testing.T) {
	cp, reg := cultPassRegistry(t)
	model := &deskModel{
		route: "manage_subscription",
		toolTurns: [][]llm.ToolCall{
			{call("c1", tools.ToolLookupCustomer, `{"email":"alice.kingsley@wonderland.com"}`)},
			{call("c2", tools.ToolCancelSubscription, `{"user_id":"a4ab87"}`)},
		},
	}
	workflow, err := support.Build(support.Deps{
		Client:    model.client(),
		Tools:     reg,
		Retriever: testRetriever(),
	}, support.Settings{ToolLoopBudget: 4})
	require.NoError(t, err)
	engine := support.NewEngine(workflow, checkpoint.NewMemoryStore())

	msgs, err := engine.Run(testContext(), "ticket-42", "Please cancel, my email is alice.kingsley@wonderland.com")
	require.NoError(t, err)

	require.Len(t, msgs, 6)
	assert.Equal(t, "User ID: a4ab87, Name: Alice Kingsley, Blocked: false", msgs[2].Content)
	assert.Equal(t, "Success: Subscription S1 cancelled.", msgs[4].Content)
	assert.Equal(t, "Subscription", msgs[5].Name)

	out, err := cp.GetUserSubscription(context.Background(), "a4ab87")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: cancelled")
}

func TestDesk_SpecialistsSeeOnlyTheirTools(t *testing.T) {
	_, reg := cultPassRegistry(t)

	tests := []struct {
		route support.Route
		tools []string
	}{
		{support.RouteManageSubscription, []string{
			tools.ToolLookupCustomer, tools.ToolGetUserSubscription, tools.ToolCancelSubscription,
		}},
		{support.RouteManageReservations, []string{
			tools.ToolLookupCustomer, tools.ToolAvailableExperiences,
			tools.ToolUserReservations, tools.ToolCreateReservation,
		}},
		{support.RouteManageAccount, []string{
			tools.ToolLookupCustomer, tools.ToolGetUserSubscription,
			tools.ToolCancelSubscription, tools.ToolSearchKnowledgeBase,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.route), func(t *testing.T) {
			model := &deskModel{route: string(tt.route)}
			client := model.client()
			workflow, err := support.Build(support.Deps{
				Client:    client,
				Tools:     reg,
				Retriever: testRetriever(),
			}, support.Settings{})
			require.NoError(t, err)

			_, err = support.NewEngine(workflow, checkpoint.NewMemoryStore()).Run(testContext(), "t", "hi")
			require.NoError(t, err)

			var names []string
			for _, tool := range client.LastCall().Tools {
				names = append(names, tool.Name)
			}
			assert.Equal(t, tt.tools, names)
		})
	}
}

func TestDesk_ConsultKnowledgeBase(t *testing.T) {
	model := &deskModel{
		route:    "consult_kb",
		verdicts: []string{"pass"},
		answers:  []string{"Use the Forgot password link on the login screen."},
	}
	engine := newTestEngine(t, model, checkpoint.NewMemoryStore())

	msgs, err := engine.Run(testContext(), "t1", "I forgot my password")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, support.KnowledgeAuthor, msgs[1].Name)
	assert.Equal(t, "Use the Forgot password link on the login screen.", msgs[1].Content)
}

func TestHandlers_RequiresDeps(t *testing.T) {
	_, reg := cultPassRegistry(t)
	client := llm.NewMockClient("")
	kb := testRetriever()

	_, err := support.Handlers(support.Deps{Tools: reg, Retriever: kb}, support.Settings{})
	assert.Error(t, err)
	_, err = support.Handlers(support.Deps{Client: client, Retriever: kb}, support.Settings{})
	assert.Error(t, err)
	_, err = support.Handlers(support.Deps{Client: client, Tools: reg}, support.Settings{})
	assert.Error(t, err)

	_, err = support.Handlers(support.Deps{Client: client, Tools: tools.NewRegistry(), Retriever: kb}, support.Settings{})
	assert.ErrorIs(t, err, tools.ErrUnknownTool)

	handlers, err := support.Handlers(support.Deps{Client: client, Tools: reg, Retriever: kb}, support.Settings{})
	require.NoError(t, err)
	assert.Len(t, handlers, len(support.Routes()))
}
