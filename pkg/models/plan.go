package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlan indicates a plan failed structural validation.
var ErrInvalidPlan = errors.New("invalid plan")

// TargetKind discriminates where a plan action is dispatched.
type TargetKind string

const (
	// TargetToolCall dispatches the action to a named tool backend.
	TargetToolCall TargetKind = "tool-call"
	// TargetDelegated routes the action through capability matching.
	TargetDelegated TargetKind = "delegated"
)

// ActionTarget says where an action runs.
type ActionTarget struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
	// ExecutorRef names the tool backend for tool-call targets.
	ExecutorRef string `json:"executor_ref,omitempty" yaml:"executor_ref,omitempty"`
	// ExecutorID optionally pins a delegated action to a registered executor.
	ExecutorID string `json:"executor_id,omitempty" yaml:"executor_id,omitempty"`
}

// PlanAction is one step of a plan.
type PlanAction struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Target      ActionTarget   `json:"target" yaml:"target"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// Order groups actions into buckets; a missing value is 0.
	Order int `json:"order,omitempty" yaml:"order,omitempty"`
	// DependsOn lists action ids. Only honored by the depends-on scheduling mode.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// MultiActionPlan is a named, ordered list of actions.
type MultiActionPlan struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Actions     []PlanAction `json:"actions" yaml:"actions"`
}

// Validate checks the plan's shape: action ids present and unique, targets known.
func (p MultiActionPlan) Validate() error {
	seen := make(map[string]bool, len(p.Actions))
	for i, a := range p.Actions {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("%w: actions[%d]: missing id", ErrInvalidPlan, i)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate action id %q", ErrInvalidPlan, a.ID)
		}
		seen[a.ID] = true

		switch a.Target.Kind {
		case TargetToolCall:
			if strings.TrimSpace(a.Target.ExecutorRef) == "" {
				return fmt.Errorf("%w: action %q: tool-call target needs executor_ref", ErrInvalidPlan, a.ID)
			}
		case TargetDelegated:
		default:
			return fmt.Errorf("%w: action %q: unknown target kind %q", ErrInvalidPlan, a.ID, a.Target.Kind)
		}
	}
	return nil
}
