package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// DefaultLimit is used when a caller passes no limit.
const DefaultLimit = 4

// MemoryRetriever ranks in-process articles by keyword overlap.
//
// Title matches weigh double, tag matches triple. Articles with no
// overlapping term are never returned.
type MemoryRetriever struct {
	mu       sync.RWMutex
	articles []Article
	limit    int
}

// NewMemoryRetriever creates a retriever over articles.
func NewMemoryRetriever(articles ...Article) *MemoryRetriever {
	r := &MemoryRetriever{limit: DefaultLimit}
	r.Add(articles...)
	return r
}

// WithLimit sets the default result limit.
func (r *MemoryRetriever) WithLimit(n int) *MemoryRetriever {
	if n > 0 {
		r.limit = n
	}
	return r
}

// Add indexes more articles. An article whose ID is already present
// replaces the old one.
func (r *MemoryRetriever) Add(articles ...Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range articles {
		replaced := false
		for i := range r.articles {
			if a.ID != "" && r.articles[i].ID == a.ID {
				r.articles[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			r.articles = append(r.articles, a)
		}
	}
}

// Len returns the number of indexed articles.
func (r *MemoryRetriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.articles)
}

// Retrieve implements Retriever.
func (r *MemoryRetriever) Retrieve(ctx context.Context, query string, limit int) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = r.limit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Passage
	for _, a := range r.articles {
		if s := score(a, terms); s > 0 {
			out = append(out, a.passage(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func score(a Article, terms map[string]bool) float64 {
	var s float64
	for t := range tokenize(a.Content) {
		if terms[t] {
			s++
		}
	}
	for t := range tokenize(a.Title) {
		if terms[t] {
			s += 2
		}
	}
	for _, tag := range a.Tags {
		for t := range tokenize(tag) {
			if terms[t] {
				s += 3
			}
		}
	}
	return s
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "can": true, "do": true,
	"for": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"what": true, "with": true, "you": true,
}

// tokenize lowercases s and returns its distinct non-stopword terms.
func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopwords[f] {
			out[f] = true
		}
	}
	return out
}
