package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/config"
	"github.com/randalmurphal/flowdesk/pkg/retrieval"
	"github.com/randalmurphal/flowdesk/pkg/tools"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	var vectorizer string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the CultPass database and index the help articles",
		Long: `Creates the CultPass SQLite database at tools.database and fills it with
demo customers, subscriptions, experiences and reservations. When
retrieval.backend is weaviate the demo help articles are indexed too.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return seed(cmd.Context(), root.cfg, vectorizer, root.logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&vectorizer, "vectorizer", "text2vec-openai", "weaviate vectorizer module for a new article class")
	return cmd
}

func seed(ctx context.Context, cfg config.Config, vectorizer string, logger *slog.Logger, out io.Writer) error {
	cp, err := tools.OpenCultPass(cfg.Tools.Database)
	if err != nil {
		return err
	}
	defer func() { _ = cp.Close() }()

	data := tools.DemoData()
	if err := cp.Seed(ctx, data); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %s: %d users, %d subscriptions, %d experiences, %d reservations\n",
		cfg.Tools.Database, len(data.Users), len(data.Subscriptions), len(data.Experiences), len(data.Reservations))

	if cfg.Retrieval.Backend != config.RetrievalWeaviate {
		return nil
	}
	kb, err := newWeaviateRetriever(cfg.Retrieval, logger)
	if err != nil {
		return err
	}
	if err := kb.EnsureSchema(ctx, vectorizer); err != nil {
		return err
	}
	articles := retrieval.DemoArticles()
	if err := kb.Index(ctx, articles); err != nil {
		return err
	}
	fmt.Fprintf(out, "Indexed %d articles into %s\n", len(articles), kb.Class())
	return nil
}
