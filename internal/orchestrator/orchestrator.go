package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/ShayCichocki/relay/internal/decompose"
	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// ErrNoToolCaller is the failure recorded for a tool-call action when the
// orchestrator was built without a ToolCaller.
var ErrNoToolCaller = errors.New("no tool caller configured")

// Metadata keys set on action tasks.
const (
	MetaPlanID          = "plan_id"
	MetaActionID        = "action_id"
	MetaBucket          = "bucket"
	MetaExecutorRef     = "executor_ref"
	MetaExecutorID      = "executor_id"
	MetaCapabilities    = "capabilities"
	MetaDelegatedTaskID = "delegated_task_id"
)

// Orchestrator runs plans: one plan task, one child task per action, buckets
// in ascending order, actions within a bucket concurrently.
type Orchestrator struct {
	store  *taskstore.Store
	engine *delegate.Engine

	tools       ToolCaller
	mode        Mode
	logger      logrus.FieldLogger
	maxParallel int
}

// New creates an Orchestrator.
func New(cfg RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}

	o := &orchestratorOptions{mode: ModeOrder, logger: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if !o.mode.Valid() {
		return nil, fmt.Errorf("orchestrator: unknown mode %q", o.mode)
	}

	return &Orchestrator{
		store:       cfg.Store,
		engine:      cfg.Engine,
		tools:       o.tools,
		mode:        o.mode,
		logger:      o.logger,
		maxParallel: o.maxParallel,
	}, nil
}

// Mode returns the bucketing mode in use.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// Execute runs plan to completion or to its first failing bucket.
//
// A plan that fails validation or bucketing is rejected before any task is
// created, with a nil Report. Otherwise the Report is always returned. When a
// bucket fails, every action already dispatched in it is awaited, the plan
// task is failed with the triggering message, later buckets are skipped and
// a *BucketError is returned.
func (o *Orchestrator) Execute(ctx context.Context, plan models.MultiActionPlan) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	buckets, err := buckets(plan, o.mode, o.logger.Debugf)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", plan.ID, err)
	}

	log := o.logger.WithField("plan_id", plan.ID)

	parent := o.store.Create(models.TaskSpec{
		Name:        plan.Name,
		Description: plan.Description,
		Kind:        models.TaskKindPlan,
		Metadata: map[string]any{
			MetaPlanID: plan.ID,
			"mode":     string(o.mode),
			"actions":  len(plan.Actions),
		},
	})
	if _, err := o.store.Start(parent.ID); err != nil {
		return nil, err
	}
	log = log.WithField("task_id", parent.ID)
	log.WithField("buckets", len(buckets)).Info("plan started")

	run := &planRun{
		plan:     plan,
		parentID: parent.ID,
		childIDs: make([]string, len(plan.Actions)),
		index:    make(map[string]int, len(plan.Actions)),
	}
	for i, a := range plan.Actions {
		run.index[a.ID] = i
	}
	report := &Report{PlanID: plan.ID, Mode: o.mode}

	var runErr error
	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		report.Buckets = append(report.Buckets, b.Label)
		if err := o.runBucket(ctx, run, b); err != nil {
			runErr = err
			break
		}
	}

	if runErr != nil {
		msg := runErr.Error()
		var be *BucketError
		if errors.As(runErr, &be) {
			// The parent carries the triggering message; where it came from goes into metadata.
			msg = be.Err.Error()
			o.store.Update(parent.ID, models.TaskPatch{Metadata: map[string]any{
				MetaBucket:   be.Bucket,
				MetaActionID: be.ActionID,
			}})
			log = log.WithFields(logrus.Fields{"bucket": be.Bucket, "action_id": be.ActionID})
		}
		log.WithError(runErr).Warn("plan failed")
		o.store.Fail(parent.ID, msg)
	} else {
		log.Info("plan completed")
		o.store.Finish(parent.ID, CompletedMarker)
	}

	o.fillReport(report, run)
	return report, runErr
}

// planRun is the per-Execute bookkeeping.
type planRun struct {
	plan     models.MultiActionPlan
	parentID string
	// childIDs is indexed by plan position; each slot is written by one goroutine.
	childIDs []string
	index    map[string]int
}

func (o *Orchestrator) runBucket(ctx context.Context, run *planRun, b Bucket) error {
	log := o.logger.WithFields(logrus.Fields{
		"plan_id": run.plan.ID,
		"bucket":  b.Label,
	})
	log.WithField("actions", len(b.Actions)).Debug("bucket started")

	p := pool.New().WithErrors().WithFirstError()
	if o.maxParallel > 0 {
		p = p.WithMaxGoroutines(o.maxParallel)
	}

	// Dispatched actions outlive cancellation of ctx; it only gates later buckets.
	actionCtx := context.WithoutCancel(ctx)
	for _, a := range b.Actions {
		a := a
		p.Go(func() error {
			return o.runAction(actionCtx, run, b.Label, a)
		})
	}

	// Wait returns only after every sibling has settled.
	if err := p.Wait(); err != nil {
		log.WithError(err).Warn("bucket failed")
		return err
	}
	log.Debug("bucket completed")
	return nil
}

func (o *Orchestrator) runAction(ctx context.Context, run *planRun, bucket int, a models.PlanAction) error {
	meta := map[string]any{
		MetaPlanID:   run.plan.ID,
		MetaActionID: a.ID,
		MetaBucket:   bucket,
	}
	kind := models.TaskKindDelegated
	if a.Target.Kind == models.TargetToolCall {
		kind = models.TaskKindToolCall
		meta[MetaExecutorRef] = a.Target.ExecutorRef
	}

	child := o.store.Create(models.TaskSpec{
		Name:        a.Name,
		Description: a.Description,
		Kind:        kind,
		ParentID:    run.parentID,
		Metadata:    meta,
	})
	run.childIDs[run.index[a.ID]] = child.ID

	log := o.logger.WithFields(logrus.Fields{
		"plan_id":   run.plan.ID,
		"bucket":    bucket,
		"action_id": a.ID,
		"task_id":   child.ID,
	})

	if _, err := o.store.Start(child.ID); err != nil {
		return &BucketError{Bucket: bucket, ActionID: a.ID, TaskID: child.ID, Err: err}
	}

	output, err := o.dispatch(ctx, run.parentID, child.ID, a)
	if err != nil {
		log.WithError(err).Warn("action failed")
		o.store.Fail(child.ID, err.Error())
		return &BucketError{Bucket: bucket, ActionID: a.ID, TaskID: child.ID, Err: err}
	}

	log.Debug("action completed")
	o.store.Finish(child.ID, output)
	return nil
}

// dispatch sends the action to its backend. A panicking backend is reported
// as an error so the child task still reaches a terminal state.
func (o *Orchestrator) dispatch(ctx context.Context, parentID, taskID string, a models.PlanAction) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output, err = nil, fmt.Errorf("action %s panicked: %v", a.ID, r)
		}
	}()

	switch a.Target.Kind {
	case models.TargetToolCall:
		if o.tools == nil {
			return nil, ErrNoToolCaller
		}
		return o.tools.CallTool(ctx, a.Target.ExecutorRef, a.Parameters)

	case models.TargetDelegated:
		work := decompose.ToWork(a, parentID)
		o.store.Update(taskID, models.TaskPatch{Metadata: map[string]any{
			MetaCapabilities: work.RequiredCapabilities,
		}})

		res := o.engine.DelegateOne(ctx, work)

		patch := map[string]any{}
		if id, ok := res.Metadata[delegate.MetaExecutorID]; ok {
			patch[MetaExecutorID] = id
		}
		if res.TaskID != "" {
			patch[MetaDelegatedTaskID] = res.TaskID
		}
		if len(patch) > 0 {
			o.store.Update(taskID, models.TaskPatch{Metadata: patch})
		}

		if !res.Success {
			if res.Error == "" {
				return nil, errors.New("executor reported failure")
			}
			return nil, errors.New(res.Error)
		}
		return res.Output, nil

	default:
		return nil, fmt.Errorf("unknown target kind %q", a.Target.Kind)
	}
}

func (o *Orchestrator) fillReport(r *Report, run *planRun) {
	if t, ok := o.store.Get(run.parentID); ok {
		r.Parent = *t
	}
	for _, id := range run.childIDs {
		if id == "" {
			continue
		}
		if t, ok := o.store.Get(id); ok {
			r.Children = append(r.Children, *t)
		}
	}
}
