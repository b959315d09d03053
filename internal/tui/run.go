package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// maxLogLines is how many activity entries stay on screen.
const maxLogLines = 8

// TaskEventMsg carries one store lifecycle event into the program.
type TaskEventMsg struct {
	Event taskstore.Event
}

// RunDoneMsg is sent once the plan has finished executing.
type RunDoneMsg struct {
	Report *orchestrator.Report
	Err    error
}

// Sender is the part of *tea.Program that Pump needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Pump forwards events to the program until the channel is closed.
func Pump(p Sender, events <-chan taskstore.Event) {
	for e := range events {
		p.Send(TaskEventMsg{Event: e})
	}
}

type logEntry struct {
	at      time.Time
	event   taskstore.EventType
	message string
}

// RunApp is the bubbletea model for a single plan run.
type RunApp struct {
	title string

	tasks []models.Task
	index map[string]int
	logs  []logEntry

	spinner   spinner.Model
	filter    textinput.Model
	filtering bool

	width    int
	height   int
	quitting bool
	done     bool
	report   *orchestrator.Report
	err      error

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	runningStyle  lipgloss.Style
	failedStyle   lipgloss.Style
	doneStyle     lipgloss.Style
	pendingStyle  lipgloss.Style
	logTimeStyle  lipgloss.Style
	hintStyle     lipgloss.Style
}

// NewRunApp creates a RunApp titled with the plan name.
func NewRunApp(title string) *RunApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "filter tasks"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	return &RunApp{
		title:   title,
		index:   make(map[string]int),
		spinner: s,
		filter:  ti,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),
		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		progressFull:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		runningStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		doneStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true),
		pendingStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		logTimeStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		hintStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// NewRunProgram creates the bubbletea program for a run view.
func NewRunProgram(title string) (*tea.Program, *RunApp) {
	app := NewRunApp(title)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Init implements tea.Model.
func (a *RunApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *RunApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.filtering {
			switch msg.Type {
			case tea.KeyEnter:
				a.filtering = false
				a.filter.Blur()
				return a, nil
			case tea.KeyEsc:
				a.filtering = false
				a.filter.Blur()
				a.filter.SetValue("")
				return a, nil
			case tea.KeyCtrlC:
				a.quitting = true
				return a, tea.Quit
			}
			var cmd tea.Cmd
			a.filter, cmd = a.filter.Update(msg)
			return a, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "/":
			a.filtering = true
			return a, a.filter.Focus()
		case "esc":
			a.filter.SetValue("")
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case TaskEventMsg:
		a.apply(msg.Event)

	case RunDoneMsg:
		a.done = true
		a.report = msg.Report
		a.err = msg.Err
		if msg.Report != nil {
			// The report is authoritative if the event channel dropped anything.
			a.upsert(msg.Report.Parent)
			for _, c := range msg.Report.Children {
				a.upsert(c)
			}
		}
	}

	return a, nil
}

func (a *RunApp) apply(e taskstore.Event) {
	a.upsert(e.Task)

	var message string
	switch e.Type {
	case taskstore.EventCreated:
		message = fmt.Sprintf("created %s (%s)", e.Task.Name, e.Task.Kind)
	case taskstore.EventStarted:
		message = fmt.Sprintf("started %s", e.Task.Name)
	case taskstore.EventUpdated:
		if id, ok := e.Task.Metadata[orchestrator.MetaExecutorID]; ok {
			message = fmt.Sprintf("%s routed to %v", e.Task.Name, id)
		} else {
			message = fmt.Sprintf("updated %s", e.Task.Name)
		}
	case taskstore.EventFinished:
		message = fmt.Sprintf("finished %s", e.Task.Name)
	case taskstore.EventError:
		message = fmt.Sprintf("failed %s: %s", e.Task.Name, e.Task.Error)
	default:
		message = fmt.Sprintf("%s %s", e.Type, e.Task.Name)
	}

	a.logs = append(a.logs, logEntry{at: e.Timestamp, event: e.Type, message: message})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

func (a *RunApp) upsert(t models.Task) {
	if t.ID == "" {
		return
	}
	if i, ok := a.index[t.ID]; ok {
		a.tasks[i] = t
		return
	}
	a.index[t.ID] = len(a.tasks)
	a.tasks = append(a.tasks, t)
}

// Counts returns (terminal, total) over non-plan tasks.
func (a *RunApp) Counts() (int, int) {
	var terminal, total int
	for _, t := range a.tasks {
		if t.Kind == models.TaskKindPlan {
			continue
		}
		total++
		if t.Status.Terminal() {
			terminal++
		}
	}
	return terminal, total
}

// Task returns the latest known state of a task.
func (a *RunApp) Task(id string) (models.Task, bool) {
	i, ok := a.index[id]
	if !ok {
		return models.Task{}, false
	}
	return a.tasks[i], true
}

// Done reports whether RunDoneMsg has been received.
func (a *RunApp) Done() bool {
	return a.done
}

// View implements tea.Model.
func (a *RunApp) View() string {
	if a.quitting && !a.done {
		return "Run view closed. Dispatched work keeps running until it settles.\n"
	}

	var b strings.Builder

	title := a.title
	if title == "" {
		title = "plan"
	}
	heading := "relay run: " + title
	if !a.done {
		heading = a.spinner.View() + " " + heading
	}
	b.WriteString(a.headerStyle.Render(heading))
	b.WriteString("\n")

	terminal, total := a.Counts()
	pct := float64(0)
	if total > 0 {
		pct = float64(terminal) / float64(total) * 100
	}
	b.WriteString(a.labelStyle.Render("Tasks:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d/%d settled", terminal, total)))
	b.WriteString("\n")
	b.WriteString(a.renderProgressBar(pct, 30))
	b.WriteString("\n\n")

	b.WriteString(a.renderTasks())
	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	switch {
	case a.filtering:
		b.WriteString(a.filter.View())
	case a.done && a.err != nil:
		b.WriteString(a.failedStyle.Render(fmt.Sprintf("Plan failed: %v", a.err)))
		b.WriteString("  ")
		b.WriteString(a.hintStyle.Render("q to exit"))
	case a.done:
		b.WriteString(a.doneStyle.Render("Plan completed."))
		b.WriteString("  ")
		b.WriteString(a.hintStyle.Render("q to exit"))
	default:
		b.WriteString(a.hintStyle.Render("/ filter  q quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func (a *RunApp) renderTasks() string {
	var b strings.Builder
	needle := strings.ToLower(strings.TrimSpace(a.filter.Value()))

	for _, t := range a.tasks {
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		indent := "  "
		if t.ParentID != "" {
			indent = "    "
		}
		name := t.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		line := fmt.Sprintf("%s%s %-40s %s", indent, a.statusBadge(t.Status), name, a.pendingStyle.Render(string(t.Kind)))
		if id, ok := t.Metadata[orchestrator.MetaExecutorID]; ok {
			line += a.pendingStyle.Render(fmt.Sprintf(" -> %v", id))
		}
		if t.Status == models.TaskStatusFailed && t.Error != "" {
			msg := t.Error
			if len(msg) > 60 {
				msg = msg[:57] + "..."
			}
			line += "  " + a.failedStyle.Render(msg)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *RunApp) statusBadge(st models.TaskStatus) string {
	switch st {
	case models.TaskStatusRunning:
		return a.runningStyle.Render("●")
	case models.TaskStatusCompleted:
		return a.doneStyle.Render("✓")
	case models.TaskStatusFailed:
		return a.failedStyle.Render("✗")
	default:
		return a.pendingStyle.Render("○")
	}
}

func (a *RunApp) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity"))
	b.WriteString("\n")

	for _, entry := range a.logs {
		ts := a.logTimeStyle.Render(entry.at.Format("15:04:05"))
		style := a.pendingStyle
		switch entry.event {
		case taskstore.EventError:
			style = a.failedStyle
		case taskstore.EventFinished:
			style = a.doneStyle
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", ts, style.Render(entry.message)))
	}
	return b.String()
}

func (a *RunApp) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}
