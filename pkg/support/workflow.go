package support

import (
	"fmt"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
)

// TriageNode is the entry node of the support workflow.
const TriageNode = "triage"

// EscalationAuthor is the author name of the escalation notice.
const EscalationAuthor = "System"

// EscalationMessage is the reply sent when a ticket goes to a human.
const EscalationMessage = "I have escalated your ticket to a human agent. They will contact you shortly."

// Escalate hands the ticket to a human. It makes no external call.
func Escalate(ctx flowgraph.Context, c Conversation) (flowgraph.Update, error) {
	ctx.Logger().Info("ticket escalated", "thread_id", c.ThreadID)
	return flowgraph.Update{FieldMessages: llm.AssistantText(EscalationAuthor, EscalationMessage)}, nil
}

// BuildWorkflow compiles the top-level support graph: triage by the
// supervisor, then exactly one handler per route, then END.
//
// Every route the supervisor can emit needs a handler; a missing one fails
// compilation with flowgraph.ErrMissingRoute.
func BuildWorkflow(supervisor *Supervisor, handlers map[Route]flowgraph.NodeFunc[Conversation]) (*flowgraph.CompiledGraph[Conversation], error) {
	if supervisor == nil {
		return nil, fmt.Errorf("support: nil supervisor")
	}
	for r := range handlers {
		if _, err := ParseRoute(string(r)); err != nil {
			return nil, fmt.Errorf("support: handler for undeclared route: %w", err)
		}
	}

	g := flowgraph.NewGraph(ConversationSchema()).
		AddNode(TriageNode, supervisor.Node())

	routes := make(map[string]string, len(handlers))
	// Deterministic node order keeps compile errors stable.
	for _, r := range Routes() {
		fn, ok := handlers[r]
		if !ok {
			continue
		}
		g.AddNode(string(r), fn).AddEdge(string(r), flowgraph.END)
		routes[string(r)] = string(r)
	}

	return g.AddConditionalEdge(TriageNode, supervisor.Router(), routes).
		SetEntry(TriageNode).
		Compile()
}
