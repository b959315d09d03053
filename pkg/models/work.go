package models

import "time"

// Constraints are advisory hints passed through to executors.
// Nothing in the delegation path enforces them.
type Constraints struct {
	MaxDuration  time.Duration `json:"max_duration,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	OutputFormat string        `json:"output_format,omitempty"`
}

// UnitOfWork is the executor-agnostic form of a delegated action.
type UnitOfWork struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Prompt               string         `json:"prompt"`
	RequiredCapabilities []string       `json:"required_capabilities"`
	Context              map[string]any `json:"context,omitempty"`
	Constraints          Constraints    `json:"constraints"`
	// ExecutorID pins the work to a registered executor, bypassing matching.
	ExecutorID string `json:"executor_id,omitempty"`
	// ParentTaskID links tracked backend tasks to an enclosing plan task.
	ParentTaskID string `json:"parent_task_id,omitempty"`
}

// WorkResult is what an executor returns for a unit of work.
// Output is meaningful when Success is true, Error otherwise.
type WorkResult struct {
	Success  bool           `json:"success"`
	TaskID   string         `json:"task_id,omitempty"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(taskID, msg string) WorkResult {
	return WorkResult{Success: false, TaskID: taskID, Error: msg}
}
