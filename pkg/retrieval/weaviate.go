package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClass is the Weaviate class holding knowledge articles.
const DefaultClass = "CultPassArticle"

// articleNamespace derives stable object IDs so re-indexing overwrites.
var articleNamespace = uuid.MustParse("5b0d4a2e-6f1c-4c4e-9a57-2b7e3c8f1d10")

// WeaviateRetriever runs nearText searches against a Weaviate class.
// The class must use a text vectorizer module.
type WeaviateRetriever struct {
	client *weaviate.Client
	class  string
	limit  int
	logger *slog.Logger
}

// WeaviateOption configures a WeaviateRetriever.
type WeaviateOption func(*WeaviateRetriever)

// WithClass overrides DefaultClass.
func WithClass(class string) WeaviateOption {
	return func(r *WeaviateRetriever) {
		if class != "" {
			r.class = class
		}
	}
}

// WithDefaultLimit sets the limit used when Retrieve gets none.
func WithDefaultLimit(n int) WeaviateOption {
	return func(r *WeaviateRetriever) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithLogger sets the logger for indexing and search events.
func WithLogger(logger *slog.Logger) WeaviateOption {
	return func(r *WeaviateRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewWeaviateClient connects to host ("localhost:8080") over scheme.
func NewWeaviateClient(scheme, host string) (*weaviate.Client, error) {
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// NewWeaviateRetriever wraps client.
func NewWeaviateRetriever(client *weaviate.Client, opts ...WeaviateOption) *WeaviateRetriever {
	if client == nil {
		panic("retrieval: weaviate client cannot be nil")
	}
	r := &WeaviateRetriever{
		client: client,
		class:  DefaultClass,
		limit:  DefaultLimit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Class returns the searched class name.
func (r *WeaviateRetriever) Class() string {
	return r.class
}

// ArticleClass is the schema created by EnsureSchema.
func ArticleClass(name, vectorizer string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       name,
		Description: "A customer support knowledge base article.",
		Vectorizer:  vectorizer,
		Properties: []*models.Property{
			{
				Name:            "articleId",
				DataType:        []string{"text"},
				Description:     "Identifier of the source article.",
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Article title.",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Indexed article text with title, content and tags.",
				Tokenization: "word",
			},
		},
	}
}

// EnsureSchema creates the article class if it does not exist.
func (r *WeaviateRetriever) EnsureSchema(ctx context.Context, vectorizer string) error {
	exists, err := r.client.Schema().ClassExistenceChecker().WithClassName(r.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", r.class, err)
	}
	if exists {
		return nil
	}
	if err := r.client.Schema().ClassCreator().WithClass(ArticleClass(r.class, vectorizer)).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", r.class, err)
	}
	r.logger.Info("weaviate class created", slog.String("class", r.class))
	return nil
}

// Index stores articles, overwriting earlier copies with the same ID.
func (r *WeaviateRetriever) Index(ctx context.Context, articles []Article) error {
	for _, a := range articles {
		_, err := r.client.Data().Creator().
			WithClassName(r.class).
			WithID(articleObjectID(a).String()).
			WithProperties(map[string]any{
				"articleId": a.ID,
				"title":     a.Title,
				"content":   a.Text(),
			}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("index article %s: %w", a.ID, err)
		}
	}
	r.logger.Info("articles indexed", slog.String("class", r.class), slog.Int("count", len(articles)))
	return nil
}

// Retrieve implements Retriever.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, limit int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = r.limit
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(
			graphql.Field{Name: "articleId"},
			graphql.Field{Name: "title"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "_additional { distance }"},
		).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("semantic search: %s", result.Errors[0].Message)
	}

	passages := r.parse(result)
	r.logger.Debug("knowledge base searched",
		slog.String("class", r.class),
		slog.Int("results", len(passages)))
	return passages, nil
}

func (r *WeaviateRetriever) parse(result *models.GraphQLResponse) []Passage {
	get, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := get[r.class].([]any)
	if !ok {
		return nil
	}

	out := make([]Passage, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]any)
		if !ok {
			continue
		}
		p := Passage{
			ID:      getString(m, "articleId"),
			Title:   getString(m, "title"),
			Content: getString(m, "content"),
		}
		if add, ok := m["_additional"].(map[string]any); ok {
			if d, ok := add["distance"].(float64); ok {
				p.Score = 1 - d
			}
		}
		out = append(out, p)
	}
	return out
}

func articleObjectID(a Article) uuid.UUID {
	key := a.ID
	if key == "" {
		key = a.Title
	}
	return uuid.NewSHA1(articleNamespace, []byte(key))
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
