package support

import (
	"encoding/json"
	"strings"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
)

// Supervisor classifies a conversation into one declared route.
type Supervisor struct {
	client  llm.Client
	routes  []Route
	model   string
	metrics observability.MetricsRecorder
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSupervisorMetrics counts route decisions by route.
func WithSupervisorMetrics(m observability.MetricsRecorder) SupervisorOption {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSupervisor creates a supervisor over every declared route.
func NewSupervisor(client llm.Client, model string, opts ...SupervisorOption) *Supervisor {
	if client == nil {
		panic("support: supervisor client cannot be nil")
	}
	s := &Supervisor{client: client, routes: Routes(), model: model, metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Labels returns the route set the supervisor may emit.
func (s *Supervisor) Labels() []string {
	return routeLabels(s.routes)
}

type routeDecision struct {
	Route string `json:"route"`
}

// Decide asks the model for a route. The model's answer is checked against
// the declared set instead of being trusted.
func (s *Supervisor) Decide(ctx flowgraph.Context, messages []llm.Message) (Route, error) {
	prompt, err := supervisorPrompt.Render(map[string]any{
		"routes": strings.Join(s.Labels(), ", "),
	})
	if err != nil {
		return "", err
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt:   prompt,
		Messages:       messages,
		Model:          s.model,
		ResponseFormat: s.responseFormat(),
	})
	if err != nil {
		return "", capability("generate", "supervisor", err)
	}

	var decision routeDecision
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &decision); err != nil {
		return "", &RouteDecisionError{Label: resp.Content, Allowed: s.routes}
	}
	route, err := ParseRoute(decision.Route)
	if err != nil {
		return "", err
	}

	observability.LogRouteDecision(ctx.Logger(), string(route))
	s.metrics.RecordRouteDecision(ctx, string(route))
	return route, nil
}

// Node returns the triage node, which records the decision in route.
func (s *Supervisor) Node() flowgraph.NodeFunc[Conversation] {
	return func(ctx flowgraph.Context, c Conversation) (flowgraph.Update, error) {
		route, err := s.Decide(ctx, c.Messages)
		if err != nil {
			return nil, err
		}
		return flowgraph.Update{FieldRoute: route}, nil
	}
}

// Router reads the recorded decision. Its label set is the supervisor's.
func (s *Supervisor) Router() flowgraph.Router[Conversation] {
	return flowgraph.NewRouter(func(_ flowgraph.Context, c Conversation) string {
		return string(c.Route)
	}, s.Labels()...)
}

func (s *Supervisor) responseFormat() *llm.ResponseFormat {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"route": map[string]any{
				"type": "string",
				"enum": s.Labels(),
			},
		},
		"required":             []string{"route"},
		"additionalProperties": false,
	})
	return &llm.ResponseFormat{Name: "route_decision", Schema: schema}
}
