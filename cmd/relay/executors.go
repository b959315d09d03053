package main

import (
	"os"

	"github.com/spf13/cobra"
)

var executorsCmd = &cobra.Command{
	Use:     "executors",
	Aliases: []string{"exec"},
	Short:   "List configured executors and their backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{NoJournal: true})
		if err != nil {
			return err
		}
		defer a.Close()

		descs := a.reg.All()
		if jsonOutput {
			return printJSON(descs)
		}
		renderExecutors(os.Stdout, descs, func(id string) bool {
			return a.reg.Executor(id) != nil
		})
		return nil
	},
}
