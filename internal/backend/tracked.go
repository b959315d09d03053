// Package backend provides concrete executor backends for the delegation engine.
package backend

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/internal/registry"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Tracked wraps an executor so every call is tracked as its own delegated
// task: created, started, then finished or failed with the inner result.
type Tracked struct {
	id     string
	inner  registry.Executor
	store  *taskstore.Store
	logger logrus.FieldLogger
}

// NewTracked wraps inner. executorID is recorded in the task metadata.
func NewTracked(executorID string, inner registry.Executor, store *taskstore.Store, logger logrus.FieldLogger) *Tracked {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracked{id: executorID, inner: inner, store: store, logger: logger}
}

// Execute runs the inner executor inside a tracked task.
func (t *Tracked) Execute(ctx context.Context, work models.UnitOfWork) (result models.WorkResult) {
	task := t.store.Create(models.TaskSpec{
		Name:        work.Name,
		Description: work.Prompt,
		Kind:        models.TaskKindDelegated,
		ParentID:    work.ParentTaskID,
		Metadata: map[string]any{
			"executor_id":  t.id,
			"work_id":      work.ID,
			"capabilities": work.RequiredCapabilities,
		},
	})
	log := t.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"executor_id": t.id,
	})
	if _, err := t.store.Start(task.ID); err != nil {
		return models.Failed(task.ID, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("executor %s panicked: %v", t.id, r)
			log.Error(msg)
			t.store.Fail(task.ID, msg)
			result = models.Failed(task.ID, msg)
		}
	}()

	result = t.inner.Execute(ctx, work)
	result.TaskID = task.ID
	if result.Success {
		t.store.Finish(task.ID, result.Output)
		return result
	}

	msg := result.Error
	if msg == "" {
		msg = "executor reported failure"
		result.Error = msg
	}
	log.WithField("error", msg).Debug("tracked execution failed")
	t.store.Fail(task.ID, msg)
	return result
}
