package orchestrator

import (
	"fmt"

	"github.com/ShayCichocki/relay/pkg/models"
)

// CompletedMarker is the result stored on a plan task that ran every bucket.
const CompletedMarker = "completed"

// Report summarizes one plan execution.
type Report struct {
	PlanID string `json:"plan_id"`
	Mode   Mode   `json:"mode"`
	// Parent is the plan task as of the end of Execute.
	Parent models.Task `json:"parent"`
	// Children are the action tasks in plan order. Actions in buckets that
	// never started have no task and are absent.
	Children []models.Task `json:"children"`
	// Buckets lists the labels of the buckets that were entered.
	Buckets []int `json:"buckets"`
}

// Succeeded reports whether the plan task completed.
func (r *Report) Succeeded() bool {
	return r != nil && r.Parent.Status == models.TaskStatusCompleted
}

// BucketError is returned by Execute when an action fails. It names the
// first failing action of the bucket; later buckets were not started.
type BucketError struct {
	Bucket   int
	ActionID string
	TaskID   string
	Err      error
}

func (e *BucketError) Error() string {
	return fmt.Sprintf("bucket %d: action %s: %v", e.Bucket, e.ActionID, e.Err)
}

func (e *BucketError) Unwrap() error {
	return e.Err
}
