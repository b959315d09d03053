package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/journal"
	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/pkg/models"
)

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusText(st models.TaskStatus) string {
	switch st {
	case models.TaskStatusCompleted:
		return color.GreenString(string(st))
	case models.TaskStatusFailed:
		return color.RedString(string(st))
	case models.TaskStatusRunning:
		return color.YellowString(string(st))
	default:
		return string(st)
	}
}

func shorten(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatDuration(t models.Task) string {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return ""
	}
	return t.CompletedAt.Sub(*t.StartedAt).Round(time.Millisecond).String()
}

func renderTasks(w io.Writer, tasks []models.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Status", "Executor", "Duration", "Error"})
	for _, t := range tasks {
		executor := ""
		if v, ok := t.Metadata[orchestrator.MetaExecutorID]; ok {
			executor = fmt.Sprint(v)
		} else if v, ok := t.Metadata[orchestrator.MetaExecutorRef]; ok {
			executor = fmt.Sprint(v)
		}
		tw.AppendRow(table.Row{shorten(t.ID, 8), shorten(t.Name, 32), t.Kind, statusText(t.Status), executor, formatDuration(t), shorten(t.Error, 48)})
	}
	tw.Render()
}

func renderReport(w io.Writer, r *orchestrator.Report) {
	renderTasks(w, append([]models.Task{r.Parent}, r.Children...))
	labels := make([]string, 0, len(r.Buckets))
	for _, b := range r.Buckets {
		labels = append(labels, fmt.Sprint(b))
	}
	fmt.Fprintf(w, "plan %s (%s): buckets run [%s]\n", r.PlanID, r.Mode, strings.Join(labels, " "))
}

func renderExecutors(w io.Writer, descs []models.ExecutorDescriptor, bound func(string) bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Capabilities", "Availability", "Backend"})
	for _, d := range descs {
		backend := color.RedString("none")
		if bound(d.ID) {
			backend = color.GreenString("bound")
		}
		tw.AppendRow(table.Row{d.ID, strings.Join(d.Capabilities, ", "), d.Availability, backend})
	}
	tw.Render()
}

func renderResults(w io.Writer, results []models.WorkResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Executor", "Success", "Output", "Error"})
	for i, r := range results {
		executor := ""
		if v, ok := r.Metadata[delegate.MetaExecutorID]; ok {
			executor = fmt.Sprint(v)
		}
		ok := color.RedString("no")
		if r.Success {
			ok = color.GreenString("yes")
		}
		output := ""
		if r.Output != nil {
			output = shorten(fmt.Sprint(r.Output), 60)
		}
		tw.AppendRow(table.Row{i, executor, ok, output, shorten(r.Error, 48)})
	}
	tw.Render()
}

func renderEntries(w io.Writer, entries []journal.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Seq", "Time", "Event", "Task", "Parent", "Name", "Status", "Error"})
	for _, e := range entries {
		tw.AppendRow(table.Row{
			e.Seq,
			e.Timestamp.Local().Format("15:04:05.000"),
			e.Event,
			shorten(e.TaskID, 8),
			shorten(e.ParentID, 8),
			shorten(e.Name, 28),
			statusText(e.Status),
			shorten(e.Error, 40),
		})
	}
	tw.Render()
}

func renderRuns(w io.Writer, runs []journal.Run) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Run", "Command", "Started", "Events"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.Command, r.StartedAt.Local().Format(time.DateTime), r.Events})
	}
	tw.Render()
}
