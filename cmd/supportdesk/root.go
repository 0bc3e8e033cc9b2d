package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/config"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "supportdesk",
		Short:         "CultPass customer-support desk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .yml or .json)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newChatCmd(opts),
		newServeCmd(opts),
		newSeedCmd(opts),
	)
	return cmd
}

// load reads the dotenv file, the config, and builds the logger.
func (o *rootOptions) load(logOut io.Writer) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	o.cfg = cfg
	o.logger = newLogger(cfg.Log, logOut)
	return nil
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
