// Package decompose turns the delegated actions of a plan into units of work.
package decompose

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/relay/pkg/models"
)

// Parameter keys with special meaning on a plan action.
const (
	ParamCapabilities = "capabilities"
	ParamMaxDuration  = "max_duration"
	ParamMaxTokens    = "max_tokens"
	ParamOutputFormat = "output_format"
)

// Decompose converts every delegated action of plan into a unit of work,
// keeping plan order. Tool-call actions are skipped.
func Decompose(plan models.MultiActionPlan, parentTaskID string) []models.UnitOfWork {
	var works []models.UnitOfWork
	for _, a := range plan.Actions {
		if a.Target.Kind != models.TargetDelegated {
			continue
		}
		works = append(works, ToWork(a, parentTaskID))
	}
	return works
}

// ToWork converts a single action. Capabilities come from the action's
// "capabilities" parameter when present, otherwise they are inferred from
// its name and description.
func ToWork(a models.PlanAction, parentTaskID string) models.UnitOfWork {
	prompt := a.Description
	if strings.TrimSpace(prompt) == "" {
		prompt = a.Name
	}

	caps, ok := ExplicitCapabilities(a.Parameters)
	if !ok {
		caps = InferCapabilities(a.Name + " " + a.Description)
	}

	ctx := make(map[string]any, len(a.Parameters))
	for k, v := range a.Parameters {
		switch k {
		case ParamCapabilities, ParamMaxDuration, ParamMaxTokens, ParamOutputFormat:
			continue
		}
		ctx[k] = v
	}

	return models.UnitOfWork{
		ID:                   a.ID,
		Name:                 a.Name,
		Prompt:               prompt,
		RequiredCapabilities: caps,
		Context:              ctx,
		Constraints:          constraintsFrom(a.Parameters),
		ExecutorID:           a.Target.ExecutorID,
		ParentTaskID:         parentTaskID,
	}
}

// ExplicitCapabilities returns the "capabilities" parameter verbatim.
// It accepts a string list, a decoded []any of strings, or a comma-separated string.
func ExplicitCapabilities(params map[string]any) ([]string, bool) {
	raw, ok := params[ParamCapabilities]
	if !ok || raw == nil {
		return nil, false
	}

	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func constraintsFrom(params map[string]any) models.Constraints {
	var c models.Constraints
	if s, ok := params[ParamMaxDuration].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			c.MaxDuration = d
		}
	}
	switch n := params[ParamMaxTokens].(type) {
	case int:
		c.MaxTokens = n
	case int64:
		c.MaxTokens = int(n)
	case float64:
		c.MaxTokens = int(n)
	}
	if s, ok := params[ParamOutputFormat].(string); ok {
		c.OutputFormat = s
	}
	return c
}
