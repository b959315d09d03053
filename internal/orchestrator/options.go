package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/taskstore"
)

// ToolCaller dispatches tool-call actions to a named tool backend.
type ToolCaller interface {
	CallTool(ctx context.Context, ref string, params map[string]any) (any, error)
}

// ToolCallerFunc adapts a function to the ToolCaller interface.
type ToolCallerFunc func(ctx context.Context, ref string, params map[string]any) (any, error)

// CallTool calls f.
func (f ToolCallerFunc) CallTool(ctx context.Context, ref string, params map[string]any) (any, error) {
	return f(ctx, ref, params)
}

// Mode selects how a plan's actions are grouped into buckets.
type Mode string

const (
	// ModeOrder groups actions by their order label. DependsOn is ignored.
	ModeOrder Mode = "order"
	// ModeDependsOn layers actions by their DependsOn graph.
	ModeDependsOn Mode = "depends_on"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeOrder || m == ModeDependsOn
}

// RequiredConfig contains the collaborators an Orchestrator cannot run without.
type RequiredConfig struct {
	// Store tracks the plan task and one child task per action.
	Store *taskstore.Store
	// Engine routes delegated actions.
	Engine *delegate.Engine
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	tools       ToolCaller
	mode        Mode
	logger      logrus.FieldLogger
	maxParallel int
}

// WithToolCaller sets the backend for tool-call actions. Without one,
// tool-call actions fail.
func WithToolCaller(t ToolCaller) Option {
	return func(o *orchestratorOptions) { o.tools = t }
}

// WithMode sets the bucketing mode. The default is ModeOrder.
func WithMode(m Mode) Option {
	return func(o *orchestratorOptions) {
		if m != "" {
			o.mode = m
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxParallel bounds how many actions of one bucket run at once.
// Zero or less means all of them.
func WithMaxParallel(n int) Option {
	return func(o *orchestratorOptions) { o.maxParallel = n }
}
