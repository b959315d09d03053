package backend

import (
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/relay/internal/claude"
	"github.com/ShayCichocki/relay/internal/registry"
)

// Kind names a backend implementation.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindClaude Kind = "claude"
)

// Spec describes how to build one executor backend.
type Spec struct {
	Kind         Kind
	Endpoint     string
	Model        string
	SystemPrompt string
	MaxTokens    int64
}

// Factory builds backends from specs, sharing one Claude client config.
type Factory struct {
	Claude      claude.ClientConfig
	HTTPTimeout time.Duration

	clients map[string]*claude.Client
}

// Build returns the executor for spec.
func (f *Factory) Build(spec Spec) (registry.Executor, error) {
	switch spec.Kind {
	case KindHTTP:
		if spec.Endpoint == "" {
			return nil, fmt.Errorf("http backend needs an endpoint")
		}
		return NewHTTPExecutor(spec.Endpoint, f.HTTPTimeout), nil

	case KindClaude, "":
		client, err := f.client(spec)
		if err != nil {
			return nil, err
		}
		return NewClaudeExecutor(claude.NewRunner(client), spec.SystemPrompt), nil

	default:
		return nil, fmt.Errorf("unknown backend kind %q", spec.Kind)
	}
}

// client reuses one Client per model and token limit.
func (f *Factory) client(spec Spec) (*claude.Client, error) {
	cfg := f.Claude
	if spec.Model != "" {
		cfg.Model = anthropic.Model(spec.Model)
	}
	if spec.MaxTokens > 0 {
		cfg.MaxTokens = spec.MaxTokens
	}

	key := fmt.Sprintf("%s/%d", cfg.Model, cfg.MaxTokens)
	if c, ok := f.clients[key]; ok {
		return c, nil
	}
	c, err := claude.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if f.clients == nil {
		f.clients = make(map[string]*claude.Client)
	}
	f.clients[key] = c
	return c, nil
}
