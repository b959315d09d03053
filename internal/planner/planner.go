// Package planner produces multi-action plans from free text or plan files.
package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/pkg/models"
)

// JSONRunner is the slice of the Claude runner the generator needs.
type JSONRunner interface {
	RunJSON(ctx context.Context, system, prompt string, target any) error
}

// Generator asks Claude for a plan and normalizes the answer.
type Generator struct {
	runner       JSONRunner
	tools        []string
	capabilities []string
	logger       logrus.FieldLogger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTools lists the tool names the model may target.
func WithTools(names []string) Option {
	return func(g *Generator) { g.tools = names }
}

// WithCapabilities lists the capability tags the model may request.
func WithCapabilities(caps []string) Option {
	return func(g *Generator) { g.capabilities = caps }
}

// WithLogger sets the generator logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator over runner.
func NewGenerator(runner JSONRunner, opts ...Option) *Generator {
	g := &Generator{runner: runner, logger: logging.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a validated plan for request.
func (g *Generator) Generate(ctx context.Context, request string) (models.MultiActionPlan, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return models.MultiActionPlan{}, fmt.Errorf("%w: empty request", models.ErrInvalidPlan)
	}

	prompt := fmt.Sprintf(planPrompt, listOrNone(g.tools), listOrNone(g.capabilities), request)

	var plan models.MultiActionPlan
	if err := g.runner.RunJSON(ctx, systemPrompt, prompt, &plan); err != nil {
		return models.MultiActionPlan{}, fmt.Errorf("generate plan: %w", err)
	}

	Normalize(&plan)
	if plan.Description == "" {
		plan.Description = request
	}
	if err := plan.Validate(); err != nil {
		return models.MultiActionPlan{}, err
	}

	g.logger.WithFields(logrus.Fields{
		"plan_id": plan.ID,
		"actions": len(plan.Actions),
	}).Info("plan generated")
	return plan, nil
}

// LoadFile reads a plan from a YAML or JSON file and validates it.
func LoadFile(path string) (models.MultiActionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.MultiActionPlan{}, fmt.Errorf("read plan: %w", err)
	}
	plan, err := Parse(data)
	if err != nil {
		return models.MultiActionPlan{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return plan, nil
}

// Parse decodes a YAML or JSON plan document, fills in missing ids and validates it.
func Parse(data []byte) (models.MultiActionPlan, error) {
	var plan models.MultiActionPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return models.MultiActionPlan{}, fmt.Errorf("%w: %v", models.ErrInvalidPlan, err)
	}
	Normalize(&plan)
	if err := plan.Validate(); err != nil {
		return models.MultiActionPlan{}, err
	}
	return plan, nil
}

// Normalize assigns a plan id and action ids where missing, and
// defaults an empty target kind to delegated.
func Normalize(plan *models.MultiActionPlan) {
	if strings.TrimSpace(plan.ID) == "" {
		plan.ID = uuid.New().String()
	}
	for i := range plan.Actions {
		a := &plan.Actions[i]
		if strings.TrimSpace(a.ID) == "" {
			a.ID = fmt.Sprintf("a%d", i+1)
		}
		if a.Target.Kind == "" {
			a.Target.Kind = models.TargetDelegated
		}
		if a.Name == "" {
			a.Name = a.ID
		}
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
