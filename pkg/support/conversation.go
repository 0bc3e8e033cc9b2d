package support

import (
	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
)

// Conversation is the durable state of one support thread.
type Conversation struct {
	ThreadID    string         `json:"thread_id"`
	Messages    []llm.Message  `json:"messages"`
	Route       Route          `json:"route,omitempty"`
	UserContext map[string]any `json:"user_context,omitempty"`
}

// Conversation field names, used as Update keys.
const (
	FieldThreadID    = "thread_id"
	FieldMessages    = "messages"
	FieldRoute       = "route"
	FieldUserContext = "user_context"
)

// ConversationSchema is the reducer table for Conversation. Messages only
// ever grow; the other fields are replaced by the latest value.
func ConversationSchema() *flowgraph.Schema[Conversation] {
	return flowgraph.NewSchema(
		flowgraph.OverwriteField(FieldThreadID, func(c *Conversation) *string { return &c.ThreadID }),
		flowgraph.AppendField(FieldMessages, func(c *Conversation) *[]llm.Message { return &c.Messages }),
		flowgraph.OverwriteField(FieldRoute, func(c *Conversation) *Route { return &c.Route }),
		flowgraph.OverwriteField(FieldUserContext, func(c *Conversation) *map[string]any { return &c.UserContext }),
	)
}

// LastUserMessage returns the content of the most recent user turn.
func (c Conversation) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == llm.RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Route is a department the supervisor can send a ticket to.
type Route string

// Declared routes.
const (
	RouteManageSubscription Route = "manage_subscription"
	RouteManageReservations Route = "manage_reservations"
	RouteManageAccount      Route = "manage_account"
	RouteConsultKB          Route = "consult_kb"
	RouteEscalate           Route = "escalate"
)

// Routes returns every declared route in a fixed order.
func Routes() []Route {
	return []Route{
		RouteManageSubscription,
		RouteManageReservations,
		RouteManageAccount,
		RouteConsultKB,
		RouteEscalate,
	}
}

// ParseRoute validates label against the declared routes.
func ParseRoute(label string) (Route, error) {
	for _, r := range Routes() {
		if string(r) == label {
			return r, nil
		}
	}
	return "", &RouteDecisionError{Label: label, Allowed: Routes()}
}

func routeLabels(routes []Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = string(r)
	}
	return out
}
