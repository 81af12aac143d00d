package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvasirlabs/askpilot/internal/config"
	"github.com/kvasirlabs/askpilot/internal/results"
)

// newRunsCmd creates the `runs` command for reviewing stored results.
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Lists recent runs from the local result store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("no result store configured (store.path)")
			}

			store, err := results.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open result store: %w", err)
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			showRun, _ := cmd.Flags().GetString("id")

			if showRun != "" {
				run, err := store.GetRun(cmd.Context(), showRun)
				if err != nil {
					return err
				}
				return printRun(run)
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tSTRATEGY\tQUERY")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.ID,
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Status,
					run.StrategyUsed,
					truncate(run.Query, 60))
			}
			return w.Flush()
		},
	}

	runsCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list.")
	runsCmd.Flags().String("id", "", "Print the full record for one run ID.")
	return runsCmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
