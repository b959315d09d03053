// Package delegate routes units of work to capability-matched executors.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/internal/registry"
	"github.com/ShayCichocki/relay/pkg/models"
)

var (
	// ErrNoMatch indicates no registered executor covers any required capability.
	ErrNoMatch = errors.New("no executor matches required capabilities")
	// ErrNoBackend indicates the matched executor was registered without a backend.
	ErrNoBackend = errors.New("executor has no backend")
)

// MetaExecutorID is the WorkResult metadata key naming the executor used.
const MetaExecutorID = "executor_id"

// ContextKey returns the context key under which the i-th sequential result
// is propagated.
func ContextKey(i int) string {
	return fmt.Sprintf("result_%d", i)
}

// Engine resolves executors through a Registry and invokes them.
// It never mutates task state itself; tracking is the executor's concern.
type Engine struct {
	reg         *registry.Registry
	logger      logrus.FieldLogger
	maxParallel int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxParallel bounds DelegateParallel fan-out. Zero or less means one
// goroutine per item.
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.maxParallel = n }
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{reg: reg, logger: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve picks the executor for work. A pinned ExecutorID that is registered
// wins; otherwise the registry's best match is used.
func (e *Engine) Resolve(work models.UnitOfWork) (models.ExecutorDescriptor, error) {
	if work.ExecutorID != "" {
		if d, ok := e.reg.Get(work.ExecutorID); ok {
			return d, nil
		}
		e.logger.WithFields(logrus.Fields{
			"work_id":     work.ID,
			"executor_id": work.ExecutorID,
		}).Warn("pinned executor not registered, falling back to capability match")
	}

	d, ok := e.reg.FindBestMatch(work.RequiredCapabilities)
	if !ok {
		return models.ExecutorDescriptor{}, fmt.Errorf("%w: [%s]", ErrNoMatch, strings.Join(work.RequiredCapabilities, ", "))
	}
	return d, nil
}

// DelegateOne resolves and invokes a single executor. When nothing matches,
// a failed result is returned and no task is created. A panicking executor
// yields a failed result.
func (e *Engine) DelegateOne(ctx context.Context, work models.UnitOfWork) (result models.WorkResult) {
	log := e.logger.WithField("work_id", work.ID)

	desc, err := e.Resolve(work)
	if err != nil {
		log.WithError(err).Warn("delegation failed")
		return models.Failed("", err.Error())
	}
	log = log.WithField("executor_id", desc.ID)

	exec := e.reg.Executor(desc.ID)
	if exec == nil {
		err := fmt.Errorf("%w: %s", ErrNoBackend, desc.ID)
		log.WithError(err).Warn("delegation failed")
		return withExecutor(models.Failed("", err.Error()), desc.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("executor panicked: %v", r)
			result = withExecutor(models.Failed("", fmt.Sprintf("executor %s panicked: %v", desc.ID, r)), desc.ID)
		}
	}()

	log.Debug("delegating")
	result = exec.Execute(ctx, work)
	if !result.Success {
		log.WithField("task_id", result.TaskID).Warnf("executor reported failure: %s", result.Error)
	}
	return withExecutor(result, desc.ID)
}

// DelegateParallel runs DelegateOne for every item concurrently and returns
// once all have settled. Results are in input order; one failure does not
// affect the others.
func (e *Engine) DelegateParallel(ctx context.Context, works []models.UnitOfWork) []models.WorkResult {
	if len(works) == 0 {
		return nil
	}
	limit := e.maxParallel
	if limit <= 0 || limit > len(works) {
		limit = len(works)
	}
	mapper := iter.Mapper[models.UnitOfWork, models.WorkResult]{MaxGoroutines: limit}
	return mapper.Map(works, func(w *models.UnitOfWork) models.WorkResult {
		return e.DelegateOne(ctx, *w)
	})
}

// DelegateSequential runs items one after another without stopping on failure.
// With propagate set, each item's context receives every earlier successful
// output under ContextKey(i), where i is that result's position in the
// returned slice.
func (e *Engine) DelegateSequential(ctx context.Context, works []models.UnitOfWork, propagate bool) []models.WorkResult {
	results := make([]models.WorkResult, 0, len(works))
	accumulated := make(map[string]any)

	for _, w := range works {
		if propagate && len(accumulated) > 0 {
			merged := make(map[string]any, len(w.Context)+len(accumulated))
			for k, v := range w.Context {
				merged[k] = v
			}
			for k, v := range accumulated {
				merged[k] = v
			}
			w.Context = merged
		}

		res := e.DelegateOne(ctx, w)
		if res.Success {
			accumulated[ContextKey(len(results))] = res.Output
		}
		results = append(results, res)
	}
	return results
}

func withExecutor(r models.WorkResult, id string) models.WorkResult {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[MetaExecutorID] = id
	r.Metadata = meta
	return r
}
