package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWeaviate records REST and GraphQL traffic.
type fakeWeaviate struct {
	mu          sync.Mutex
	classExists bool
	queries     []string
	created     []map[string]any
	objects     []map[string]any
	graphQL     func(w http.ResponseWriter)
}

func (f *fakeWeaviate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/meta":
		_, _ = w.Write([]byte(`{"hostname":"http://[::]:8080","version":"1.25.0","modules":{}}`))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/schema/"):
		if !f.classExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"class":"CultPassArticle"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
		var class map[string]any
		_ = json.Unmarshal(body, &class)
		f.created = append(f.created, class)
		f.classExists = true
		_, _ = w.Write(body)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/objects":
		var obj map[string]any
		_ = json.Unmarshal(body, &obj)
		f.objects = append(f.objects, obj)
		_, _ = w.Write(body)
	case r.URL.Path == "/v1/graphql":
		var req struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		f.queries = append(f.queries, req.Query)
		f.graphQL(w)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeWeaviate(t *testing.T, f *fakeWeaviate) *WeaviateRetriever {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := NewWeaviateClient("http", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	return NewWeaviateRetriever(client, WithDefaultLimit(2))
}

func TestWeaviateRetriever_Retrieve(t *testing.T) {
	f := &fakeWeaviate{graphQL: func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"data":{"Get":{"CultPassArticle":[
			{"articleId":"kb-pause","title":"Pausing","content":"Title: Pausing\nContent: once a year\nTags: subscription","_additional":{"distance":0.25}},
			{"articleId":"kb-login","title":"Login","content":"Title: Login\nContent: reset\nTags: account","_additional":{"distance":0.5}}
		]}}}`))
	}}
	r := newFakeWeaviate(t, f)

	passages, err := r.Retrieve(context.Background(), "pause my plan", 0)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "kb-pause", passages[0].ID)
	assert.Equal(t, "Pausing", passages[0].Title)
	assert.InDelta(t, 0.75, passages[0].Score, 1e-9)
	assert.Contains(t, passages[1].Content, "Content: reset")

	require.Len(t, f.queries, 1)
	q := f.queries[0]
	assert.Contains(t, q, "CultPassArticle")
	assert.Contains(t, q, "nearText")
	assert.Contains(t, q, "pause my plan")
	assert.Contains(t, q, "limit")
}

func TestWeaviateRetriever_GraphQLError(t *testing.T) {
	f := &fakeWeaviate{graphQL: func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"no module with name text2vec"}]}`))
	}}
	r := newFakeWeaviate(t, f)

	_, err := r.Retrieve(context.Background(), "anything", 0)
	assert.ErrorContains(t, err, "no module with name text2vec")
}

func TestWeaviateRetriever_EmptyResult(t *testing.T) {
	f := &fakeWeaviate{graphQL: func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"data":{"Get":{"CultPassArticle":[]}}}`))
	}}
	r := newFakeWeaviate(t, f)

	passages, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestWeaviateRetriever_EmptyQuery(t *testing.T) {
	r := newFakeWeaviate(t, &fakeWeaviate{})
	_, err := r.Retrieve(context.Background(), " ", 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestWeaviateRetriever_EnsureSchemaAndIndex(t *testing.T) {
	f := &fakeWeaviate{}
	r := newFakeWeaviate(t, f)
	ctx := context.Background()

	require.NoError(t, r.EnsureSchema(ctx, "text2vec-openai"))
	require.NoError(t, r.EnsureSchema(ctx, "text2vec-openai"))
	require.Len(t, f.created, 1, "existing class is not recreated")
	assert.Equal(t, "CultPassArticle", f.created[0]["class"])
	assert.Equal(t, "text2vec-openai", f.created[0]["vectorizer"])

	articles := testArticles()[:2]
	require.NoError(t, r.Index(ctx, articles))
	require.NoError(t, r.Index(ctx, articles))
	require.Len(t, f.objects, 4)

	props := f.objects[0]["properties"].(map[string]any)
	assert.Equal(t, "kb-login", props["articleId"])
	assert.Equal(t, articles[0].Text(), props["content"])
	assert.Equal(t, f.objects[0]["id"], f.objects[2]["id"], "re-indexing reuses object IDs")
	assert.NotEqual(t, f.objects[0]["id"], f.objects[1]["id"])
}

func TestArticleClass(t *testing.T) {
	class := ArticleClass("KB", "none")
	assert.Equal(t, "KB", class.Class)
	assert.Equal(t, "none", class.Vectorizer)
	require.Len(t, class.Properties, 3)
	assert.Equal(t, "articleId", class.Properties[0].Name)
}

func TestNewWeaviateRetriever_Options(t *testing.T) {
	client, err := NewWeaviateClient("", "localhost:8080")
	require.NoError(t, err)

	r := NewWeaviateRetriever(client, WithClass("Custom"), WithLogger(nil))
	assert.Equal(t, "Custom", r.Class())
	assert.NotNil(t, r.logger)

	assert.Panics(t, func() { NewWeaviateRetriever(nil) })
}
