package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var planOut string

var planCmd = &cobra.Command{
	Use:   "plan <request...>",
	Short: "Generate a plan from a request without running it",
	Long: `Ask Claude to turn a free-text request into a multi-action plan.

The plan is printed as YAML (or JSON with --json) so it can be reviewed,
edited and later executed with 'relay run <file>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{NoJournal: true})
		if err != nil {
			return err
		}
		defer a.Close()

		gen, err := a.generator()
		if err != nil {
			return err
		}
		plan, err := gen.Generate(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(plan)
		}
		data, err := yaml.Marshal(plan)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		if planOut == "" {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(planOut, data, 0644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Wrote %d actions to %s", len(plan.Actions), planOut), color.FgGreen)
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "write the plan to a file instead of stdout")
}
