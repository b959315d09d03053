package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/backend"
	"github.com/ShayCichocki/relay/internal/claude"
	"github.com/ShayCichocki/relay/internal/config"
	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/journal"
	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/internal/planner"
	"github.com/ShayCichocki/relay/internal/registry"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// appOptions are per-command overrides on top of the loaded config.
type appOptions struct {
	// Command is recorded as the journal run label.
	Command     string
	Mode        string
	MaxParallel int
	NoJournal   bool
}

// app is the fully wired set of collaborators one command runs against.
type app struct {
	cfg     *config.Config
	logger  logrus.FieldLogger
	store   *taskstore.Store
	reg     *registry.Registry
	engine  *delegate.Engine
	orch    *orchestrator.Orchestrator
	tools   *backend.ToolClient
	factory *backend.Factory
	journal *journal.Journal
	watcher *registry.Watcher

	detach func()
}

func newApp(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, opts appOptions) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  taskstore.New(taskstore.WithLogger(logger)),
		reg:    registry.New(),
		tools:  backend.NewToolClient(cfg.Tools, cfg.Timeouts.HTTP),
		factory: &backend.Factory{
			Claude:      claudeConfig(cfg),
			HTTPTimeout: cfg.Timeouts.HTTP,
		},
	}

	if !opts.NoJournal && cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = journal.DefaultPath()
		}
		j, err := journal.Open(path, logger)
		if err != nil {
			return nil, err
		}
		if err := j.StartRun(ctx, opts.Command); err != nil {
			j.Close()
			return nil, err
		}
		a.journal = j
		a.detach = j.Attach(a.store)
	}

	for _, ec := range cfg.Executors {
		a.reg.Register(ec.Descriptor(), a.bindConfigured(ec))
	}

	if cfg.ExecutorsFile != "" {
		w, err := registry.NewWatcher(a.reg, cfg.ExecutorsFile, a.bindDescriptor,
			registry.WithWatchLogger(logger),
			registry.OnReload(func(err error) {
				if err == nil {
					logger.WithField("executors", a.reg.Count()).Info("executor descriptors reloaded")
				}
			}),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("executors file: %w", err)
		}
		a.watcher = w
	}

	maxParallel := cfg.Orchestrator.MaxParallel
	if opts.MaxParallel > 0 {
		maxParallel = opts.MaxParallel
	}
	mode := cfg.Orchestrator.Mode
	if opts.Mode != "" {
		mode = opts.Mode
	}

	a.engine = delegate.New(a.reg, delegate.WithLogger(logger), delegate.WithMaxParallel(maxParallel))
	orch, err := orchestrator.New(
		orchestrator.RequiredConfig{Store: a.store, Engine: a.engine},
		orchestrator.WithToolCaller(a.tools),
		orchestrator.WithMode(orchestrator.Mode(mode)),
		orchestrator.WithMaxParallel(maxParallel),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch

	return a, nil
}

// bindConfigured builds the tracked backend for a configured executor.
// A backend that cannot be built leaves the executor registered but unbound,
// so capability routing still sees it and reports NoBackend on dispatch.
func (a *app) bindConfigured(ec config.ExecutorConfig) registry.Executor {
	inner, err := a.factory.Build(backendSpec(ec))
	if err != nil {
		a.logger.WithError(err).WithField("executor_id", ec.ID).Warn("executor has no backend")
		return nil
	}
	return backend.NewTracked(ec.ID, inner, a.store, a.logger)
}

// bindDescriptor binds a descriptor loaded from the executors file. Ids that
// are also configured get their configured backend; others keep whatever is
// already registered under that id.
func (a *app) bindDescriptor(desc models.ExecutorDescriptor) (registry.Executor, error) {
	for _, ec := range a.cfg.Executors {
		if ec.ID == desc.ID {
			return a.bindConfigured(ec), nil
		}
	}
	return a.reg.Executor(desc.ID), nil
}

// generator returns a plan generator backed by the default Claude config.
func (a *app) generator() (*planner.Generator, error) {
	client, err := claude.NewClient(a.factory.Claude)
	if err != nil {
		return nil, err
	}
	return planner.NewGenerator(claude.NewRunner(client),
		planner.WithTools(a.tools.Tools()),
		planner.WithCapabilities(capabilityUnion(a.reg.All())),
		planner.WithLogger(a.logger),
	), nil
}

// Close detaches the journal and stops the watcher.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.WithError(err).Debug("close watcher")
		}
	}
	if a.detach != nil {
		a.detach()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.WithError(err).Warn("close journal")
		}
	}
}

func claudeConfig(cfg *config.Config) claude.ClientConfig {
	key, _, _ := config.ResolveAPIKey(cfg)
	return claude.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		MaxTokens:     cfg.Anthropic.MaxTokens,
		APIKey:        key,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
}

func backendSpec(ec config.ExecutorConfig) backend.Spec {
	return backend.Spec{
		Kind:         backend.Kind(ec.Kind),
		Endpoint:     ec.Endpoint,
		Model:        ec.Model,
		SystemPrompt: ec.SystemPrompt,
		MaxTokens:    ec.MaxTokens,
	}
}

// capabilityUnion returns every capability tag served by descs, sorted.
func capabilityUnion(descs []models.ExecutorDescriptor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range descs {
		for _, c := range d.Capabilities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
