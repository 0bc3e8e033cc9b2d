// Package retrieval provides the knowledge base search capability used by
// the support agents.
//
// A Retriever returns ranked passages for a query. MemoryRetriever scores
// articles by keyword overlap and needs no external service. WeaviateRetriever
// runs a nearText search against a Weaviate class.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuery is returned when a query has no searchable text.
var ErrEmptyQuery = errors.New("retrieval: query cannot be empty")

// Retriever searches a knowledge base.
//
// Implementations must be safe for concurrent use. A limit of zero or less
// selects the implementation's default.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Passage, error)
}

// Article is a knowledge base entry as stored by the support team.
type Article struct {
	ID      string
	Title   string
	Content string
	Tags    []string
}

// Text is the indexed form of the article.
func (a Article) Text() string {
	return fmt.Sprintf("Title: %s\nContent: %s\nTags: %s", a.Title, a.Content, strings.Join(a.Tags, ", "))
}

// Passage is one retrieved result.
type Passage struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// Normalize converts the loosely typed output of a search backend into
// passages. A single string becomes a one-element sequence.
func Normalize(result any) ([]Passage, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []Passage{{Content: v}}, nil
	case []string:
		out := make([]Passage, 0, len(v))
		for _, s := range v {
			out = append(out, Passage{Content: s})
		}
		return out, nil
	case Passage:
		return []Passage{v}, nil
	case []Passage:
		return v, nil
	case Article:
		return []Passage{v.passage(0)}, nil
	case []Article:
		out := make([]Passage, len(v))
		for i, a := range v {
			out[i] = a.passage(0)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("retrieval: cannot normalize %T", result)
	}
}

// Func adapts a search function that yields a single string or any value
// accepted by Normalize.
type Func func(ctx context.Context, query string, limit int) (any, error)

// Retrieve implements Retriever.
func (f Func) Retrieve(ctx context.Context, query string, limit int) ([]Passage, error) {
	raw, err := f(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// JoinContents concatenates passage contents as a generation context.
func JoinContents(passages []Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n\n")
}

// Format renders passages for a tool result, one titled block per passage.
func Format(passages []Passage) string {
	if len(passages) == 0 {
		return "No relevant articles found."
	}
	blocks := make([]string, len(passages))
	for i, p := range passages {
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		blocks[i] = fmt.Sprintf("--- %s ---\n%s", title, p.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func (a Article) passage(score float64) Passage {
	return Passage{ID: a.ID, Title: a.Title, Content: a.Text(), Score: score}
}
