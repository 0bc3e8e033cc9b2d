package retrieval

// DemoArticles is the knowledge base shipped with the demo database.
func DemoArticles() []Article {
	return []Article{
		{
			ID:      "kb-001",
			Title:   "How to reserve a spot for an event",
			Content: "Open the CultPass app, pick an experience and tap Reserve. Reservations are confirmed instantly while slots remain.",
			Tags:    []string{"reservation", "events", "booking"},
		},
		{
			ID:      "kb-002",
			Title:   "What is included in a CultPass subscription",
			Content: "Basic members get 4 experiences a month. Premium members get 8 experiences a month and access to premium events.",
			Tags:    []string{"subscription", "benefits", "premium"},
		},
		{
			ID:      "kb-003",
			Title:   "How to cancel or pause a subscription",
			Content: "Subscriptions can be cancelled at any time from account settings. Pausing is available once per year for up to 30 days.",
			Tags:    []string{"subscription", "cancellation", "pause"},
		},
		{
			ID:      "kb-004",
			Title:   "Trouble logging in",
			Content: "Use the Forgot password link on the login screen. If the account is blocked, contact support for a manual review.",
			Tags:    []string{"login", "password", "account"},
		},
		{
			ID:      "kb-005",
			Title:   "Refund policy",
			Content: "Unused monthly quota is not refunded. Charges made in error are refunded within 10 business days.",
			Tags:    []string{"billing", "refund"},
		},
	}
}
