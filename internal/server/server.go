// Package server exposes the task store, registry, delegation engine and
// orchestrator over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/decompose"
	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/graph"
	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/internal/planner"
	"github.com/ShayCichocki/relay/internal/registry"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/internal/version"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Config for the HTTP API handler.
type Config struct {
	Store        *taskstore.Store
	Registry     *registry.Registry
	Engine       *delegate.Engine
	Orchestrator *orchestrator.Orchestrator
	BasePath     string
	Logger       logrus.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope returned by every route.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type server struct {
	store  *taskstore.Store
	reg    *registry.Registry
	engine *delegate.Engine
	orch   *orchestrator.Orchestrator
	logger logrus.FieldLogger
}

// New returns an HTTP handler exposing the relay API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Engine == nil || cfg.Orchestrator == nil {
		return nil, errors.New("server: store, registry, engine and orchestrator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	basePath := cfg.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	hcfg := huma.DefaultConfig("Relay API", version.Get())
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s := &server{
		store:  cfg.Store,
		reg:    cfg.Registry,
		engine: cfg.Engine,
		orch:   cfg.Orchestrator,
		logger: logger,
	}
	s.registerHealth(group)
	s.registerTasks(group)
	s.registerExecutors(group)
	s.registerPlans(group)
	s.registerDelegate(group)
	s.registerInfer(group)

	return router, nil
}

func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start),
			}).Debug("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, taskstore.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, models.ErrInvalidPlan),
		errors.Is(err, graph.ErrCycleDetected),
		errors.Is(err, graph.ErrUnknownDependency):
		return newAPIError(http.StatusBadRequest, "invalid_plan", err.Error(), nil)
	case errors.Is(err, taskstore.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func (s *server) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:        "ok",
			Executors:     s.reg.Count(),
			Tasks:         len(s.store.All()),
			DroppedEvents: s.store.DroppedEvents(),
			Time:          time.Now().UTC(),
		}}, nil
	})
}

func (s *server) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks in creation order",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"Comma-separated status filter"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		statuses, err := parseStatuses(input.Status)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
		}
		tasks := s.store.All(statuses...)
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks, Count: len(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body models.Task `json:"body"`
	}, error) {
		task, ok := s.store.Get(input.ID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", taskstore.ErrTaskNotFound, input.ID))
		}
		return &struct {
			Body models.Task `json:"body"`
		}{Body: *task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-children",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/children",
		Summary:     "List a task's child tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		if _, ok := s.store.Get(input.ID); !ok {
			return nil, handleError(fmt.Errorf("%w: %s", taskstore.ErrTaskNotFound, input.ID))
		}
		tasks := s.store.Children(input.ID)
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks, Count: len(tasks)}}, nil
	})
}

func (s *server) registerExecutors(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-executors",
		Method:      http.MethodGet,
		Path:        "/executors",
		Summary:     "List registered executors in registration order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ExecutorResponse `json:"body"`
	}, error) {
		descs := s.reg.All()
		out := make([]ExecutorResponse, 0, len(descs))
		for _, d := range descs {
			out = append(out, s.executorResponse(d))
		}
		return &struct {
			Body []ExecutorResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-executor-availability",
		Method:      http.MethodPut,
		Path:        "/executors/{id}/availability",
		Summary:     "Set an executor's availability",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body AvailabilityRequest `json:"body"`
	}) (*struct {
		Body ExecutorResponse `json:"body"`
	}, error) {
		avail := models.Availability(input.Body.Availability)
		if !avail.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid availability", map[string]any{"availability": input.Body.Availability})
		}
		if !s.reg.SetAvailability(input.ID, avail) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "executor not found: "+input.ID, nil)
		}
		desc, _ := s.reg.Get(input.ID)
		s.logger.WithFields(logrus.Fields{"executor_id": input.ID, "availability": avail}).Info("executor availability changed")
		return &struct {
			Body ExecutorResponse `json:"body"`
		}{Body: s.executorResponse(desc)}, nil
	})
}

func (s *server) executorResponse(d models.ExecutorDescriptor) ExecutorResponse {
	return ExecutorResponse{
		ID:           d.ID,
		Capabilities: d.Capabilities,
		Availability: string(d.Availability),
		Bound:        s.reg.Executor(d.ID) != nil,
	}
}

func (s *server) registerPlans(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "execute-plan",
		Method:        http.MethodPost,
		Path:          "/plans",
		Summary:       "Execute a plan and wait for its report",
		Description:   "A plan whose bucket fails still returns 200 with succeeded=false.",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body PlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		plan := input.Body.toPlan()
		planner.Normalize(&plan)

		// Dispatched work is never cancelled, so the request context is not passed on.
		report, err := s.orch.Execute(context.WithoutCancel(ctx), plan)
		if report == nil {
			return nil, handleError(err)
		}
		resp := PlanResponse{Report: report, Succeeded: report.Succeeded()}
		if err != nil {
			resp.Error = err.Error()
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func (s *server) registerDelegate(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "delegate",
		Method:      http.MethodPost,
		Path:        "/delegate",
		Summary:     "Delegate one unit of work to the best matching executor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DelegateRequest `json:"body"`
	}) (*struct {
		Body DelegateResponse `json:"body"`
	}, error) {
		req := input.Body
		if strings.TrimSpace(req.Prompt) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "prompt is required", map[string]any{"field": "prompt"})
		}
		var maxDuration time.Duration
		if req.MaxDuration != "" {
			d, err := time.ParseDuration(req.MaxDuration)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid max_duration", map[string]any{"field": "max_duration", "reason": err.Error()})
			}
			maxDuration = d
		}
		caps := req.Capabilities
		if len(caps) == 0 {
			caps = decompose.InferCapabilities(req.Prompt)
		}
		name := req.Name
		if name == "" {
			name = "delegated"
		}

		work := models.UnitOfWork{
			ID:                   uuid.NewString(),
			Name:                 name,
			Prompt:               req.Prompt,
			RequiredCapabilities: caps,
			Context:              req.Context,
			Constraints: models.Constraints{
				MaxDuration:  maxDuration,
				MaxTokens:    req.MaxTokens,
				OutputFormat: req.OutputFormat,
			},
			ExecutorID: req.ExecutorID,
		}
		result := s.engine.DelegateOne(context.WithoutCancel(ctx), work)
		return &struct {
			Body DelegateResponse `json:"body"`
		}{Body: DelegateResponse{Capabilities: caps, Result: result}}, nil
	})
}

func (s *server) registerInfer(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "infer-capabilities",
		Method:      http.MethodPost,
		Path:        "/infer",
		Summary:     "Infer capability tags from free text",
	}, func(ctx context.Context, input *struct {
		Body InferRequest `json:"body"`
	}) (*struct {
		Body InferResponse `json:"body"`
	}, error) {
		return &struct {
			Body InferResponse `json:"body"`
		}{Body: InferResponse{Capabilities: decompose.InferCapabilities(input.Body.Text)}}, nil
	})
}

func parseStatuses(raw string) ([]models.TaskStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []models.TaskStatus
	for _, part := range strings.Split(raw, ",") {
		st := models.TaskStatus(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}
