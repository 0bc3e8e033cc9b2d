package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr    string
		metrics bool
		trace   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the support desk over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var traceOut = cmd.ErrOrStderr()
			if !trace {
				traceOut = nil
			}
			tel, err := initTelemetry(metrics, traceOut)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()

			a, err := newApp(ctx, root.cfg, root.logger, appOptions{metrics: tel.metrics, tracing: tel.tracing})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr: addr,
				Handler: newRouter(&server{
					engine:     a.engine,
					newContext: a.context,
					logger:     root.logger,
				}, tel.handler, tel.tracing),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				root.logger.Info("listening", "addr", addr, "store", root.cfg.Store.Backend)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&metrics, "metrics", true, "serve Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&trace, "trace", false, "print spans to stderr")
	return cmd
}
