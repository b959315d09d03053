// Package tui provides the live terminal view for `relay run --tui`.
//
// The view is read-only. It renders every task the store knows about, a
// completion bar and a short activity log, and is driven entirely by
// lifecycle events forwarded from a store event channel:
//
//	program, _ := tui.NewRunProgram(plan.Name)
//	events, cancel := store.Events(256)
//	go tui.Pump(program, events)
//
//	go func() {
//	    report, err := orch.Execute(ctx, plan)
//	    cancel()
//	    program.Send(tui.RunDoneMsg{Report: report, Err: err})
//	}()
//	program.Run()
//
// Press / to filter tasks by name, esc to clear the filter, q to quit.
package tui
