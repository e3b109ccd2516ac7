package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"NewsDesk/internal/app"
	"NewsDesk/internal/config"
	"NewsDesk/internal/logging"
)

type commandContext struct {
	configFlag   string
	logLevelFlag string
}

// load resolves configuration, logs every fallback and opens the application.
func (c *commandContext) load(ctx context.Context) (*app.Application, *slog.Logger, error) {
	path := strings.TrimSpace(c.configFlag)
	if path == "" {
		path = os.Getenv("NEWSDESK_CONFIG")
	}
	cfg, fallbacks := config.LoadFile(path)
	if c.logLevelFlag != "" {
		cfg.Logging.Level = c.logLevelFlag
		fallbacks = append(fallbacks, cfg.Validate()...)
	}

	logger := logging.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	for _, f := range fallbacks {
		logger.Warn("config fallback", "field", f.Field, "value", f.Value, "used", f.Used, "reason", f.Reason)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func newRootCommand() *cobra.Command {
	c := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "newsdesk",
		Short:         "Cluster news articles into verified stories",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configFlag, "config", "c", "", "Configuration file path (defaults to $NEWSDESK_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&c.logLevelFlag, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(newServeCommand(c))
	rootCmd.AddCommand(newIngestCommand(c))
	rootCmd.AddCommand(newSweepCommand(c))
	rootCmd.AddCommand(newBatchCommand(c))
	rootCmd.AddCommand(newStoriesCommand(c))

	return rootCmd
}
