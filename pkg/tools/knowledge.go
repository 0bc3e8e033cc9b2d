package tools

import (
	"context"
	"encoding/json"

	"github.com/randalmurphal/flowdesk/pkg/retrieval"
)

var queryParams = json.RawMessage(`{
	"type": "object",
	"properties": {"query": {"type": "string", "minLength": 1, "description": "What to look up"}},
	"required": ["query"],
	"additionalProperties": false
}`)

// KnowledgeSearch exposes a retriever as the search_knowledge_base tool.
func KnowledgeSearch(r retrieval.Retriever, limit int) Tool {
	return Tool{
		Name:        ToolSearchKnowledgeBase,
		Description: "Semantic search over the support knowledge base articles.",
		Parameters:  queryParams,
		Handler: func(ctx context.Context, args Args) (string, error) {
			passages, err := r.Retrieve(ctx, args.String("query"), limit)
			if err != nil {
				return "", err
			}
			return retrieval.Format(passages), nil
		},
	}
}
