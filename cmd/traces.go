package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/trace"
)

var (
	tracesConfigPath string
	tracesLimit      int
	tracesSince      string
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List captured traces",
	Long: `List the traces in the local trace store, oldest first.

Trace IDs can be passed to view, annotate and check.`,
	RunE: runTraces,
}

func init() {
	rootCmd.AddCommand(tracesCmd)

	tracesCmd.Flags().StringVarP(&tracesConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	tracesCmd.Flags().IntVar(&tracesLimit, "limit", 0, "Show only the most recent N traces")
	tracesCmd.Flags().StringVar(&tracesSince, "since", "", "Show traces captured within a duration, e.g. 24h")
}

func runTraces(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(tracesConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	filter := trace.Filter{Limit: tracesLimit}
	if tracesSince != "" {
		d, err := time.ParseDuration(tracesSince)
		if err != nil {
			return ExitError{Code: 3, Err: fmt.Errorf("invalid --since duration: %w", err)}
		}
		since := time.Now().Add(-d)
		filter.Since = &since
	}

	store := trace.NewLocalStore(cfg.Traces.Dir)
	metas, err := store.List(filter)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("No traces recorded yet. Run 'tracemark capture' first.")
			return nil
		}
		return ExitError{Code: 1, Err: err}
	}
	if len(metas) == 0 {
		fmt.Println("No traces match the filter.")
		return nil
	}

	fmt.Printf("%-28s %-20s %-12s %s\n", "ID", "CAPTURED", "SOURCE", "MODEL")
	for _, m := range metas {
		fmt.Printf("%-28s %-20s %-12s %s\n",
			m.ID,
			m.CapturedAt.Local().Format("2006-01-02 15:04:05"),
			m.Source,
			m.Model,
		)
	}
	return nil
}
