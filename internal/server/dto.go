package server

import (
	"time"

	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Request payloads

type TargetRequest struct {
	Kind        string `json:"kind,omitempty" enum:"tool-call,delegated"`
	ExecutorRef string `json:"executor_ref,omitempty"`
	ExecutorID  string `json:"executor_id,omitempty"`
}

type ActionRequest struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Target      TargetRequest  `json:"target,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Order       int            `json:"order,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

type PlanRequest struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Actions     []ActionRequest `json:"actions"`
}

func (p PlanRequest) toPlan() models.MultiActionPlan {
	plan := models.MultiActionPlan{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Actions:     make([]models.PlanAction, 0, len(p.Actions)),
	}
	for _, a := range p.Actions {
		plan.Actions = append(plan.Actions, models.PlanAction{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Target: models.ActionTarget{
				Kind:        models.TargetKind(a.Target.Kind),
				ExecutorRef: a.Target.ExecutorRef,
				ExecutorID:  a.Target.ExecutorID,
			},
			Parameters: a.Parameters,
			Order:      a.Order,
			DependsOn:  a.DependsOn,
		})
	}
	return plan
}

type DelegateRequest struct {
	Name   string `json:"name,omitempty"`
	Prompt string `json:"prompt"`
	// Capabilities are inferred from the prompt when empty.
	Capabilities []string       `json:"capabilities,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	ExecutorID   string         `json:"executor_id,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	// MaxDuration is a Go duration string such as "30s".
	MaxDuration  string `json:"max_duration,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

type InferRequest struct {
	Text string `json:"text"`
}

type AvailabilityRequest struct {
	Availability string `json:"availability" enum:"available,busy,offline"`
}

// Response payloads

type PlanResponse struct {
	Report    *orchestrator.Report `json:"report"`
	Succeeded bool                 `json:"succeeded"`
	Error     string               `json:"error,omitempty"`
}

type DelegateResponse struct {
	Capabilities []string          `json:"capabilities"`
	Result       models.WorkResult `json:"result"`
}

type InferResponse struct {
	Capabilities []string `json:"capabilities"`
}

type ExecutorResponse struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	Availability string   `json:"availability"`
	Bound        bool     `json:"bound"`
}

type TaskListResponse struct {
	Tasks []models.Task `json:"tasks"`
	Count int           `json:"count"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Executors int    `json:"executors"`
	Tasks     int    `json:"tasks"`
	// DroppedEvents counts events lost by slow event-channel subscribers.
	DroppedEvents uint64    `json:"dropped_events"`
	Time          time.Time `json:"time"`
}
