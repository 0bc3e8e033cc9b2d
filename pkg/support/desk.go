package support

import (
	"fmt"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
	"github.com/randalmurphal/flowdesk/pkg/tools"
)

// Deps are the capabilities a support desk is built from.
type Deps struct {
	Client    llm.Client
	Tools     *tools.Registry
	Retriever retrieval.Retriever
	Metrics   observability.MetricsRecorder
}

// Settings tune the desk's agents. Zero values take the package defaults.
type Settings struct {
	Model          string
	ToolLoopBudget int
	MaxRetries     int
	RetrievalLimit int
}

type specialistSpec struct {
	route        Route
	name         string
	instructions string
	tools        []string
}

var specialists = []specialistSpec{
	{
		route:        RouteManageSubscription,
		name:         "Subscription",
		instructions: "You are the Subscription Manager. Always verify user identity by email first using `lookup_customer`. Do not guess IDs.",
		tools:        []string{tools.ToolLookupCustomer, tools.ToolGetUserSubscription, tools.ToolCancelSubscription},
	},
	{
		route:        RouteManageReservations,
		name:         "Reservation",
		instructions: "You are the Reservation Specialist. If a user asks to book, list `get_available_experiences` first.",
		tools: []string{
			tools.ToolLookupCustomer, tools.ToolAvailableExperiences,
			tools.ToolUserReservations, tools.ToolCreateReservation,
		},
	},
	{
		route: RouteManageAccount,
		name:  "Account",
		instructions: "You are the Account Specialist. Verify the customer by email with `lookup_customer` before touching their subscription. " +
			"Use `search_knowledge_base` for policy questions.",
		tools: []string{
			tools.ToolLookupCustomer, tools.ToolGetUserSubscription,
			tools.ToolCancelSubscription, tools.ToolSearchKnowledgeBase,
		},
	},
}

// Handlers builds one node per declared route.
//
// The registry must hold every CultPass tool and search_knowledge_base.
func Handlers(deps Deps, settings Settings) (map[Route]flowgraph.NodeFunc[Conversation], error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("support: nil client")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("support: nil tool registry")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("support: nil retriever")
	}

	handlers := make(map[Route]flowgraph.NodeFunc[Conversation], len(Routes()))
	for _, spec := range specialists {
		s, err := NewSpecialist(spec.name, spec.instructions, deps.Client, deps.Tools, spec.tools,
			WithToolLoopBudget(settings.ToolLoopBudget),
			WithSpecialistModel(settings.Model),
			WithSpecialistMetrics(deps.Metrics),
		)
		if err != nil {
			return nil, err
		}
		handlers[spec.route] = s.Node()
	}

	maxRetries := DefaultMaxRetries
	if settings.MaxRetries > 0 {
		maxRetries = settings.MaxRetries
	}
	kb := NewKnowledgeAgent(deps.Client, deps.Retriever,
		WithMaxRetries(maxRetries),
		WithRetrievalLimit(settings.RetrievalLimit),
		WithKnowledgeModel(settings.Model),
		WithKnowledgeMetrics(deps.Metrics),
	)
	handlers[RouteConsultKB] = kb.Node()
	handlers[RouteEscalate] = Escalate
	return handlers, nil
}

// Build compiles the full support workflow.
func Build(deps Deps, settings Settings) (*flowgraph.CompiledGraph[Conversation], error) {
	handlers, err := Handlers(deps, settings)
	if err != nil {
		return nil, err
	}
	return BuildWorkflow(NewSupervisor(deps.Client, settings.Model, WithSupervisorMetrics(deps.Metrics)), handlers)
}
