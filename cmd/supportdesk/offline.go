package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
)

// offlineKeywords maps a route to words that send a ticket there. Routes
// are checked in order; consult_kb is the fallback.
var offlineKeywords = []struct {
	route string
	words []string
}{
	{"escalate", []string{"human", "lawyer", "legal", "manager", "furious"}},
	{"manage_reservations", []string{"book", "reserve", "reservation", "experience", "event"}},
	{"manage_subscription", []string{"cancel", "subscription", "plan", "tier", "quota", "billing"}},
	{"manage_account", []string{"account", "blocked", "email", "profile"}},
}

// offlineClient answers without a model so the desk can be tried without
// an API key. Routing is keyword based, specialists report tool output
// verbatim, and every knowledge answer passes evaluation.
func offlineClient() *llm.MockClient {
	return llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case req.ResponseFormat != nil && req.ResponseFormat.Name == "route_decision":
			return &llm.CompletionResponse{Content: fmt.Sprintf(`{"route":%q}`, offlineRoute(req.Messages))}, nil
		case req.ResponseFormat != nil:
			return &llm.CompletionResponse{Content: `{"verdict":"pass"}`}, nil
		case len(req.Tools) > 0:
			return offlineSpecialist(req), nil
		default:
			return &llm.CompletionResponse{Content: offlineAnswer(req.SystemPrompt)}, nil
		}
	})
}

func offlineRoute(msgs []llm.Message) string {
	var text string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			text = strings.ToLower(msgs[i].Content)
			break
		}
	}
	for _, k := range offlineKeywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.route
			}
		}
	}
	return "consult_kb"
}

// offlineSpecialist looks the customer up once when the message carries an
// email address, then relays whatever the tools said.
func offlineSpecialist(req llm.CompletionRequest) *llm.CompletionResponse {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == llm.RoleTool {
		return &llm.CompletionResponse{Content: last.Content}
	}
	for _, field := range strings.Fields(last.Content) {
		email := strings.Trim(field, ".,;:!?<>()")
		if strings.Contains(email, "@") && offlineHasTool(req.Tools, "lookup_customer") {
			return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{
				ID:        "offline_lookup",
				Name:      "lookup_customer",
				Arguments: []byte(fmt.Sprintf(`{"email":%q}`, email)),
			}}}
		}
	}
	return &llm.CompletionResponse{Content: "Please share the email address on your account so I can look you up."}
}

func offlineHasTool(defs []llm.Tool, name string) bool {
	for _, d := range defs {
		if d.Name == name {
			return true
		}
	}
	return false
}

// offlineAnswer returns the first retrieved passage from a generate prompt.
func offlineAnswer(prompt string) string {
	_, ctx, ok := strings.Cut(prompt, "# Context:\n")
	if !ok {
		return "I don't know."
	}
	ctx = strings.TrimSpace(ctx)
	if first, _, ok := strings.Cut(ctx, "\n\n"); ok {
		ctx = first
	}
	if ctx == "" {
		return "I don't know."
	}
	return ctx
}
