package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/decompose"
	"github.com/ShayCichocki/relay/pkg/models"
)

var (
	delegateCaps         []string
	delegateExecutor     string
	delegateSequential   bool
	delegatePropagate    bool
	delegateMaxTokens    int
	delegateMaxDuration  time.Duration
	delegateOutputFormat string
)

var delegateCmd = &cobra.Command{
	Use:   "delegate <prompt>...",
	Short: "Route prompts straight to capability-matched executors",
	Long: `Delegate one or more prompts without a plan.

Each prompt becomes a unit of work. Capabilities come from --cap or are
inferred from the prompt text. Several prompts run in parallel unless
--sequential is set; with --propagate each sequential success is passed to
the later prompts as context under result_<n>.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{Command: "delegate"})
		if err != nil {
			return err
		}
		defer a.Close()

		works := buildWorks(args, workFlags{
			Capabilities: delegateCaps,
			ExecutorID:   delegateExecutor,
			Constraints: models.Constraints{
				MaxTokens:    delegateMaxTokens,
				MaxDuration:  delegateMaxDuration,
				OutputFormat: delegateOutputFormat,
			},
		})
		results := delegateWorks(cmd.Context(), a, works, delegateSequential, delegatePropagate)

		if jsonOutput {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			renderResults(os.Stdout, results)
		}

		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d delegations failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	delegateCmd.Flags().StringSliceVar(&delegateCaps, "cap", nil, "required capability (repeatable); inferred from the prompt when omitted")
	delegateCmd.Flags().StringVar(&delegateExecutor, "executor", "", "pin to a registered executor id")
	delegateCmd.Flags().BoolVar(&delegateSequential, "sequential", false, "run prompts one after another")
	delegateCmd.Flags().BoolVar(&delegatePropagate, "propagate", false, "pass earlier successes to later prompts (with --sequential)")
	delegateCmd.Flags().IntVar(&delegateMaxTokens, "max-tokens", 0, "advisory token limit passed to the executor")
	delegateCmd.Flags().DurationVar(&delegateMaxDuration, "max-duration", 0, "advisory duration limit passed to the executor")
	delegateCmd.Flags().StringVar(&delegateOutputFormat, "output-format", "", "advisory output format passed to the executor")
}

type workFlags struct {
	Capabilities []string
	ExecutorID   string
	Constraints  models.Constraints
}

func buildWorks(prompts []string, f workFlags) []models.UnitOfWork {
	works := make([]models.UnitOfWork, 0, len(prompts))
	for i, p := range prompts {
		caps := f.Capabilities
		if len(caps) == 0 {
			caps = decompose.InferCapabilities(p)
		}
		works = append(works, models.UnitOfWork{
			ID:                   uuid.NewString(),
			Name:                 fmt.Sprintf("prompt %d", i+1),
			Prompt:               p,
			RequiredCapabilities: append([]string(nil), caps...),
			Constraints:          f.Constraints,
			ExecutorID:           f.ExecutorID,
		})
	}
	return works
}

func delegateWorks(ctx context.Context, a *app, works []models.UnitOfWork, sequential, propagate bool) []models.WorkResult {
	switch {
	case len(works) == 1:
		return []models.WorkResult{a.engine.DelegateOne(ctx, works[0])}
	case sequential:
		return a.engine.DelegateSequential(ctx, works, propagate)
	default:
		return a.engine.DelegateParallel(ctx, works)
	}
}
