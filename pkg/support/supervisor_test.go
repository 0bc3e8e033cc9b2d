package support_test

import (
	"encoding/json"
	"testing"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/support"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_Decide(t *testing.T) {
	client := llm.NewMockClient(`{"route":"manage_reservations"}`)
	sup := support.NewSupervisor(client, "gpt-4o")

	history := []llm.Message{
		llm.UserText("hi"),
		llm.AssistantText("Knowledge", "Hello!"),
		llm.UserText("I want to book Sunset Yoga"),
	}
	route, err := sup.Decide(testContext(), history)
	require.NoError(t, err)
	assert.Equal(t, support.RouteManageReservations, route)

	req := client.LastCall()
	require.NotNil(t, req)
	assert.Equal(t, history, req.Messages, "the whole history is classified")
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Contains(t, req.SystemPrompt, "manage_subscription, manage_reservations, manage_account, consult_kb, escalate")

	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "route_decision", req.ResponseFormat.Name)
	var schema struct {
		Properties struct {
			Route struct {
				Enum []string `json:"enum"`
			} `json:"route"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(req.ResponseFormat.Schema, &schema))
	assert.Equal(t, sup.Labels(), schema.Properties.Route.Enum)
}

func TestSupervisor_RejectsUndeclaredOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		label   string
	}{
		{"unknown label", `{"route":"refunds"}`, "refunds"},
		{"empty label", `{"route":""}`, ""},
		{"not json", "manage_account", "manage_account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := support.NewSupervisor(llm.NewMockClient(tt.content), "")
			_, err := sup.Decide(testContext(), []llm.Message{llm.UserText("x")})
			require.Error(t, err)
			assert.ErrorIs(t, err, support.ErrRouteDecision)

			var routeErr *support.RouteDecisionError
			require.ErrorAs(t, err, &routeErr)
			assert.Equal(t, tt.label, routeErr.Label)
			assert.Len(t, routeErr.Allowed, len(support.Routes()))
		})
	}
}

func TestSupervisor_GenerateFailure(t *testing.T) {
	sup := support.NewSupervisor(llm.NewMockClient("").WithError(llm.ErrRateLimited), "")
	_, err := sup.Decide(testContext(), nil)
	assert.ErrorIs(t, err, flowgraph.ErrCapability)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.NotErrorIs(t, err, support.ErrRouteDecision)
}

func TestSupervisor_NodeAndRouter(t *testing.T) {
	sup := support.NewSupervisor(llm.NewMockClient(`{"route":"escalate"}`), "")

	update, err := sup.Node()(testContext(), support.Conversation{Messages: []llm.Message{llm.UserText("human please")}})
	require.NoError(t, err)
	assert.Equal(t, flowgraph.Update{support.FieldRoute: support.RouteEscalate}, update)

	router := sup.Router()
	assert.ElementsMatch(t, sup.Labels(), router.Labels())
}

func TestNewSupervisor_NilClientPanics(t *testing.T) {
	assert.Panics(t, func() { support.NewSupervisor(nil, "") })
}

func TestParseRoute(t *testing.T) {
	for _, r := range support.Routes() {
		got, err := support.ParseRoute(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := support.ParseRoute("Manage_Account")
	assert.ErrorIs(t, err, support.ErrRouteDecision)
	assert.Contains(t, err.Error(), `"Manage_Account"`)
}

func TestConversation_LastUserMessage(t *testing.T) {
	c := support.Conversation{Messages: []llm.Message{
		llm.UserText("first"),
		llm.AssistantText("System", "reply"),
		llm.UserText("second"),
		llm.AssistantText("System", "reply"),
	}}
	assert.Equal(t, "second", c.LastUserMessage())
	assert.Empty(t, support.Conversation{}.LastUserMessage())
}

func TestConversationSchema(t *testing.T) {
	schema := support.ConversationSchema()

	prior := support.Conversation{
		ThreadID: "t1",
		Messages: []llm.Message{llm.UserText("a")},
		Route:    support.RouteConsultKB,
	}
	next, err := schema.Merge(prior, flowgraph.Update{
		support.FieldMessages: llm.AssistantText("Knowledge", "b"),
		support.FieldRoute:    support.RouteEscalate,
	})
	require.NoError(t, err)
	assert.Len(t, next.Messages, 2)
	assert.Equal(t, support.RouteEscalate, next.Route)
	assert.Equal(t, "t1", next.ThreadID)

	_, err = schema.Merge(prior, flowgraph.Update{"ticket": "x"})
	assert.ErrorIs(t, err, flowgraph.ErrSchema)

	_, err = schema.Merge(prior, flowgraph.Update{support.FieldRoute: "escalate"})
	assert.ErrorIs(t, err, flowgraph.ErrSchema, "routes must be typed")
}
