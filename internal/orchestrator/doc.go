// Package orchestrator executes multi-action plans bucket by bucket.
//
// A plan becomes one plan task in the task store with one child task per
// action. Actions are grouped into buckets, either by their order label
// (ModeOrder) or by the levels of their depends_on graph (ModeDependsOn).
// Buckets run in ascending order; actions inside a bucket run concurrently.
// The first failing action stops the plan after its bucket has settled, and
// later buckets are never started.
//
// Tool-call actions are sent to a ToolCaller by executor_ref. Delegated
// actions are converted into units of work and routed through the delegate
// engine, which picks an executor by capability.
//
// Example usage:
//
//	orch, err := orchestrator.New(
//		orchestrator.RequiredConfig{Store: store, Engine: engine},
//		orchestrator.WithToolCaller(tools),
//		orchestrator.WithMode(orchestrator.ModeDependsOn),
//	)
//	report, err := orch.Execute(ctx, plan)
package orchestrator
