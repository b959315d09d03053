package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being worked on.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed and failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskKind classifies what a task tracks.
type TaskKind string

const (
	// TaskKindPlan is the parent task for a whole plan execution.
	TaskKindPlan TaskKind = "plan"
	// TaskKindToolCall is an action dispatched to a tool server.
	TaskKindToolCall TaskKind = "tool-call"
	// TaskKindDelegated is an action routed to a capability-matched executor.
	TaskKindDelegated TaskKind = "delegated"
)

// Valid returns true if the kind is a known value.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindPlan, TaskKindToolCall, TaskKindDelegated:
		return true
	default:
		return false
	}
}

// Task represents a trackable unit of work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the short display name.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Kind classifies the task.
	Kind TaskKind `json:"kind"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// ParentID is the ID of the enclosing plan task, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Metadata is caller-supplied context (executor id, capabilities, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
	// Result is set when the task completes.
	Result any `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task entered running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task entered a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy of the task that shares no mutable state with t.
func (t Task) Clone() Task {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// TaskSpec holds the caller-supplied fields for creating a task.
type TaskSpec struct {
	Name        string
	Description string
	Kind        TaskKind
	ParentID    string
	Metadata    map[string]any
}

// TaskPatch is a shallow update to a task's display and progress fields.
// It has no status field; status only moves through the lifecycle calls.
type TaskPatch struct {
	Name        *string
	Description *string
	// Metadata keys are merged into the existing bag.
	Metadata map[string]any
}
