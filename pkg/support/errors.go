package support

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
)

var (
	// ErrRouteDecision indicates the supervisor produced a label outside
	// the declared route set.
	ErrRouteDecision = errors.New("route decision outside declared labels")

	// ErrLoopBudgetExceeded indicates a specialist kept requesting tools
	// past its reason/act budget.
	ErrLoopBudgetExceeded = errors.New("tool loop budget exceeded")

	// ErrEmptyMessage indicates a run was requested without user text.
	ErrEmptyMessage = errors.New("user message cannot be empty")
)

// RouteDecisionError reports an undeclared or unparseable routing label.
type RouteDecisionError struct {
	Label   string
	Allowed []Route
}

func (e *RouteDecisionError) Error() string {
	return fmt.Sprintf("route decision %q not in [%s]", e.Label, strings.Join(routeLabels(e.Allowed), ", "))
}

// Is reports ErrRouteDecision.
func (e *RouteDecisionError) Is(target error) bool {
	return target == ErrRouteDecision
}

// LoopBudgetError reports a specialist that exhausted its tool rounds.
type LoopBudgetError struct {
	Specialist string
	Budget     int
}

func (e *LoopBudgetError) Error() string {
	return fmt.Sprintf("specialist %s: %d tool rounds used without a final answer", e.Specialist, e.Budget)
}

// Is reports ErrLoopBudgetExceeded.
func (e *LoopBudgetError) Is(target error) bool {
	return target == ErrLoopBudgetExceeded
}

// capability wraps a failed external call.
func capability(kind, name string, err error) error {
	return &flowgraph.CapabilityError{Capability: kind, Name: name, Err: err}
}
