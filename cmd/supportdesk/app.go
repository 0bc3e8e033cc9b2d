package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/config"
	flowerrors "github.com/randalmurphal/flowdesk/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
	"github.com/randalmurphal/flowdesk/pkg/support"
	"github.com/randalmurphal/flowdesk/pkg/tools"
)

// app owns every resource one command needs. Close releases them.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    checkpoint.Store
	cultpass *tools.CultPass
	engine   *support.Engine
}

type appOptions struct {
	client  llm.Client
	metrics observability.MetricsRecorder
	tracing bool
}

// newApp wires configuration into a ready engine. A non-nil opts.client
// replaces the configured provider.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	a.cultpass, err = tools.OpenCultPass(cfg.Tools.Database)
	if err != nil {
		return nil, err
	}

	kb, err := newRetriever(cfg.Retrieval, logger)
	if err != nil {
		return nil, err
	}

	client := opts.client
	if client == nil {
		client, err = newClient(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
	}

	metrics := opts.metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	registry := tools.NewRegistry()
	for _, t := range append(a.cultpass.Tools(), tools.KnowledgeSearch(kb, cfg.Retrieval.Limit)) {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	workflow, err := support.Build(support.Deps{
		Client:    client,
		Tools:     registry,
		Retriever: kb,
		Metrics:   metrics,
	}, support.Settings{
		Model:          cfg.LLM.Model,
		ToolLoopBudget: cfg.Engine.ToolLoopBudget,
		MaxRetries:     cfg.Engine.MaxRetries,
		RetrievalLimit: cfg.Retrieval.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}

	runOpts := []flowgraph.RunOption{
		flowgraph.WithGraphName("supportdesk"),
		flowgraph.WithMaxIterations(cfg.Engine.MaxSteps),
		flowgraph.WithObservabilityLogger(logger),
		flowgraph.WithMetricsRecorder(metrics),
		flowgraph.WithTracing(opts.tracing),
	}
	a.engine = support.NewEngine(workflow, a.store,
		flowgraph.WithRunTimeout(cfg.Engine.Timeout),
		flowgraph.WithExecutorLogger(logger),
		flowgraph.WithExecutorMetrics(metrics),
		flowgraph.WithRunOptions(runOpts...),
	)
	return a, nil
}

// context returns an engine context that logs through the app logger.
func (a *app) context(ctx context.Context) flowgraph.Context {
	return flowgraph.NewContext(ctx, flowgraph.WithLogger(a.logger))
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cultpass != nil {
		errs = append(errs, a.cultpass.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (checkpoint.Store, error) {
	var (
		store checkpoint.Store
		err   error
	)
	switch cfg.Backend {
	case config.StoreMemory:
		return checkpoint.NewMemoryStore(), nil
	case config.StoreSQLite:
		var s *checkpoint.SQLiteStore
		s, err = checkpoint.NewSQLiteStore(cfg.Path)
		store = s
	case config.StoreBadger:
		var s *checkpoint.BadgerStore
		s, err = checkpoint.NewBadgerStore(checkpoint.BadgerConfig{
			Path:       cfg.Path,
			SyncWrites: true,
			Logger:     logger,
		})
		store = s
	case config.StoreRedis:
		var s *checkpoint.RedisStore
		s, err = checkpoint.NewRedisStoreFromURL(ctx, cfg.URL, "")
		store = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

func newRetriever(cfg config.Retrieval, logger *slog.Logger) (retrieval.Retriever, error) {
	switch cfg.Backend {
	case config.RetrievalMemory:
		return retrieval.NewMemoryRetriever(retrieval.DemoArticles()...).WithLimit(cfg.Limit), nil
	case config.RetrievalWeaviate:
		r, err := newWeaviateRetriever(cfg, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Backend)
	}
}

func newWeaviateRetriever(cfg config.Retrieval, logger *slog.Logger) (*retrieval.WeaviateRetriever, error) {
	client, err := retrieval.NewWeaviateClient(cfg.Scheme, cfg.Host)
	if err != nil {
		return nil, err
	}
	return retrieval.NewWeaviateRetriever(client,
		retrieval.WithClass(cfg.Class),
		retrieval.WithDefaultLimit(cfg.Limit),
		retrieval.WithLogger(logger),
	), nil
}

func newClient(cfg config.LLM, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []llm.OpenAIOption{
			llm.WithModel(cfg.Model),
			llm.WithTemperature(cfg.Temperature),
			llm.WithTimeout(cfg.Timeout),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.BaseURL))
		}
		inner := llm.NewOpenAIClient(cfg.APIKey, opts...)
		return llm.NewRetryClient(inner, flowerrors.NewRetryConfig(
			flowerrors.WithMaxAttempts(cfg.MaxAttempts),
		), logger), nil
	case config.ProviderMock:
		return offlineClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
