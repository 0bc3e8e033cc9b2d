package support_test

import (
	"testing"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/support"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyNode(author, text string) flowgraph.NodeFunc[support.Conversation] {
	return func(flowgraph.Context, support.Conversation) (flowgraph.Update, error) {
		return flowgraph.Update{support.FieldMessages: llm.AssistantText(author, text)}, nil
	}
}

func allHandlers() map[support.Route]flowgraph.NodeFunc[support.Conversation] {
	h := make(map[support.Route]flowgraph.NodeFunc[support.Conversation])
	for _, r := range support.Routes() {
		h[r] = replyNode("Test", string(r))
	}
	return h
}

func TestBuildWorkflow_MissingEscalateFailsCompile(t *testing.T) {
	handlers := allHandlers()
	delete(handlers, support.RouteEscalate)

	sup := support.NewSupervisor(llm.NewMockClient(`{"route":"escalate"}`), "")
	_, err := support.BuildWorkflow(sup, handlers)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowgraph.ErrMissingRoute)
	assert.Contains(t, err.Error(), "escalate")
}

func TestBuildWorkflow_Errors(t *testing.T) {
	_, err := support.BuildWorkflow(nil, allHandlers())
	assert.Error(t, err)

	handlers := allHandlers()
	handlers[support.Route("refunds")] = replyNode("Test", "x")
	sup := support.NewSupervisor(llm.NewMockClient(""), "")
	_, err = support.BuildWorkflow(sup, handlers)
	assert.ErrorIs(t, err, support.ErrRouteDecision)
}

func TestBuildWorkflow_Topology(t *testing.T) {
	sup := support.NewSupervisor(llm.NewMockClient(""), "")
	wf, err := support.BuildWorkflow(sup, allHandlers())
	require.NoError(t, err)

	assert.Equal(t, support.TriageNode, wf.EntryPoint())
	assert.True(t, wf.IsConditional(support.TriageNode))

	routes := wf.Routes(support.TriageNode)
	require.Len(t, routes, len(support.Routes()))
	for _, r := range support.Routes() {
		assert.Equal(t, string(r), routes[string(r)])
		assert.Equal(t, []string{flowgraph.END}, wf.Successors(string(r)))
	}
}

func TestBuildWorkflow_DispatchesEveryRoute(t *testing.T) {
	for _, r := range support.Routes() {
		t.Run(string(r), func(t *testing.T) {
			sup := support.NewSupervisor(llm.NewMockClient(`{"route":"`+string(r)+`"}`), "")
			wf, err := support.BuildWorkflow(sup, allHandlers())
			require.NoError(t, err)

			final, err := wf.Run(testContext(), support.Conversation{
				Messages: []llm.Message{llm.UserText("help")},
			})
			require.NoError(t, err)
			assert.Equal(t, r, final.Route)
			require.Len(t, final.Messages, 2)
			assert.Equal(t, string(r), final.Messages[1].Content)
		})
	}
}

func TestEscalate(t *testing.T) {
	update, err := support.Escalate(testContext(), support.Conversation{ThreadID: "t9"})
	require.NoError(t, err)

	msg := update[support.FieldMessages].(llm.Message)
	assert.Equal(t, llm.RoleAssistant, msg.Role)
	assert.Equal(t, "System", msg.Name)
	assert.Equal(t, "I have escalated your ticket to a human agent. They will contact you shortly.", msg.Content)
}
