package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"NewsDesk/internal/domain"
)

func newServeCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume the article stream and run the periodic sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, logger, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			logger.Info("serving")
			return application.Serve(cmd.Context())
		},
	}
}

func newIngestCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest JSON-lines articles from FILE (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open articles: %w", err)
				}
				defer f.Close()
				in = f
			}

			application, _, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Ingest(cmd.Context(), in)
			outcomes := make([]string, 0, len(report))
			for outcome := range report {
				outcomes = append(outcomes, string(outcome))
			}
			sort.Strings(outcomes)
			for _, o := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", o, report[domain.Outcome(o)])
			}
			return err
		},
	}
}

func newSweepCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one status sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
}

func newBatchCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Run one batch summarization sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
}

func newStoriesCommand(c *commandContext) *cobra.Command {
	var (
		statusFlag string
		category   string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "List stories as JSON, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.StoryFilter{Category: category, Limit: limit}
			if statusFlag != "" {
				st, ok := domain.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				filter.Status = st
			}

			application, _, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			views, err := application.Stories(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeJSON(cmd, views)
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (monitoring, developing, breaking, verified)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum stories to return")
	return cmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
