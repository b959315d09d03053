package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/journal"
)

var (
	historyRun   string
	historyTask  string
	historyLimit int
	historyRuns  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded task lifecycle events",
	Long: `Show task lifecycle events recorded in the journal.

Without flags the events of the most recent run are shown. The journal is an
audit trail only: past runs are never resumed from it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Journal.Path
		if path == "" {
			path = journal.DefaultPath()
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no journal at %s", path)
		}
		j, err := journal.Open(path, logger)
		if err != nil {
			return err
		}
		defer j.Close()

		ctx := cmd.Context()
		if historyRuns {
			runs, err := j.Runs(ctx, historyLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			renderRuns(os.Stdout, runs)
			return nil
		}

		filter := journal.Filter{RunID: historyRun, TaskID: historyTask, Limit: historyLimit}
		if filter.RunID == "" && filter.TaskID == "" {
			runs, err := j.Runs(ctx, 1)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}
			filter.RunID = runs[0].ID
		}

		entries, err := j.List(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		renderEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyRun, "run", "", "run id")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "task id (also matches its children)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum rows (most recent kept)")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "list runs instead of events")
}
