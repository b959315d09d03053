package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/internal/planner"
	"github.com/ShayCichocki/relay/internal/tui"
	"github.com/ShayCichocki/relay/pkg/models"
)

var (
	runTUI         bool
	runMode        string
	runMaxParallel int
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan-file | request...>",
	Short: "Execute a plan file or a plan generated from a request",
	Long: `Execute a multi-action plan.

If the first argument is an existing file it is loaded as a YAML or JSON plan.
Otherwise the arguments are joined into a request and Claude generates the
plan from the configured tools and executor capabilities.

Actions run bucket by bucket: by their order label (default) or by
depends_on layers with --mode depends_on. Actions in one bucket run
concurrently. The first failing bucket fails the plan and later buckets are
skipped. Interrupting stops new buckets from starting; work already
dispatched is allowed to settle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{
			Command:     "run " + strings.Join(args, " "),
			Mode:        runMode,
			MaxParallel: runMaxParallel,
			NoJournal:   runDryRun,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := resolvePlan(ctx, a, args)
		if err != nil {
			return err
		}

		if runDryRun {
			return printBuckets(os.Stdout, plan, a.orch.Mode())
		}

		var report *orchestrator.Report
		if runTUI {
			report, err = executeWithTUI(ctx, a, plan)
		} else {
			report, err = a.orch.Execute(ctx, plan)
		}
		if report == nil {
			return err
		}

		if jsonOutput {
			if jerr := printJSON(report); jerr != nil {
				return jerr
			}
		} else {
			renderReport(os.Stdout, report)
			if err == nil {
				printStatus("✓", fmt.Sprintf("Plan %s completed", report.PlanID), color.FgGreen)
			} else {
				printStatus("✗", fmt.Sprintf("Plan %s failed: %v", report.PlanID, err), color.FgRed)
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show a live task view while the plan runs")
	runCmd.Flags().StringVar(&runMode, "mode", "", "scheduling mode: order or depends_on (default from config)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "max concurrent actions per bucket (0 = unbounded)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the bucket schedule without executing")
}

// resolvePlan loads args[0] as a plan file when it exists, otherwise asks
// the planner to generate one from the joined arguments.
func resolvePlan(ctx context.Context, a *app, args []string) (models.MultiActionPlan, error) {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			plan, err := planner.LoadFile(args[0])
			if err != nil {
				return models.MultiActionPlan{}, err
			}
			planner.Normalize(&plan)
			return plan, nil
		}
	}

	gen, err := a.generator()
	if err != nil {
		return models.MultiActionPlan{}, fmt.Errorf("plan generation needs Claude: %w", err)
	}
	return gen.Generate(ctx, strings.Join(args, " "))
}

func printBuckets(w io.Writer, plan models.MultiActionPlan, mode orchestrator.Mode) error {
	buckets, err := orchestrator.Buckets(plan, mode)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(buckets)
	}
	fmt.Fprintf(w, "plan %s: %d actions in %d buckets (%s)\n", plan.ID, len(plan.Actions), len(buckets), mode)
	for _, b := range buckets {
		ids := make([]string, 0, len(b.Actions))
		for _, act := range b.Actions {
			target := string(act.Target.Kind)
			if act.Target.ExecutorRef != "" {
				target += ":" + act.Target.ExecutorRef
			}
			ids = append(ids, fmt.Sprintf("%s (%s)", act.ID, target))
		}
		fmt.Fprintf(w, "  [%d] %s\n", b.Label, strings.Join(ids, ", "))
	}
	return nil
}

type runOutcome struct {
	report *orchestrator.Report
	err    error
}

// executeWithTUI runs the plan while a bubbletea view follows store events.
// Quitting the view early does not abandon the plan: execution is awaited.
func executeWithTUI(ctx context.Context, a *app, plan models.MultiActionPlan) (*orchestrator.Report, error) {
	program, _ := tui.NewRunProgram(plan.Name)
	events, cancel := a.store.Events(256)
	go tui.Pump(program, events)

	done := make(chan runOutcome, 1)
	go func() {
		report, err := a.orch.Execute(ctx, plan)
		cancel()
		program.Send(tui.RunDoneMsg{Report: report, Err: err})
		done <- runOutcome{report: report, err: err}
	}()

	if _, err := program.Run(); err != nil {
		a.logger.WithError(err).Warn("run view exited with error")
	}

	select {
	case out := <-done:
		return out.report, out.err
	default:
		printStatus("…", "Waiting for dispatched work to settle", color.FgYellow)
		out := <-done
		return out.report, out.err
	}
}
