package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph"
	"github.com/randalmurphal/flowdesk/pkg/support"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		threadID    string
		userContext map[string]string
		trace       bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the support desk in the terminal",
		Long: `Starts an interactive session on one support thread. The thread is
persisted in the configured store, so running chat again with the same
--thread resumes the conversation. Type quit, exit or q to leave.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var traceOut io.Writer
			if trace {
				traceOut = cmd.ErrOrStderr()
			}
			tel, err := initTelemetry(false, traceOut)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()

			a, err := newApp(ctx, root.cfg, root.logger, appOptions{tracing: tel.tracing})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if threadID == "" {
				threadID = uuid.NewString()
			}
			s := &chatSession{
				engine:      a.engine,
				newContext:  a.context,
				threadID:    threadID,
				userContext: toAnyMap(userContext),
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ticket %s. Type quit to exit.\n", threadID)
			return s.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread ID to resume (default: a new one)")
	cmd.Flags().StringToStringVar(&userContext, "context", nil, "customer context passed to the agents, e.g. --context email=a@b.c")
	cmd.Flags().BoolVar(&trace, "trace", false, "print spans to stderr")
	return cmd
}

// chatSession is one interactive conversation on a thread.
type chatSession struct {
	engine      *support.Engine
	newContext  func(context.Context) flowgraph.Context
	threadID    string
	userContext map[string]any
}

func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "User: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Assistant: Goodbye!")
			return nil
		}

		msgs, err := s.engine.RunWithContext(s.newContext(ctx), s.threadID, text, s.userContext)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Assistant: Sorry, I couldn't process that (%v). Please try again.\n", err)
			continue
		}
		// Context is stored with the thread after the first turn.
		s.userContext = nil

		for _, m := range support.Replies(msgs) {
			fmt.Fprintf(out, "Assistant: %s\n", m.Content)
		}
	}
}

func toAnyMap(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
