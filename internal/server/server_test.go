package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/ShayCichocki/relay/internal/delegate"
	"github.com/ShayCichocki/relay/internal/orchestrator"
	"github.com/ShayCichocki/relay/internal/registry"
	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

type testEnv struct {
	srv   *httptest.Server
	store *taskstore.Store
	reg   *registry.Registry
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	store := taskstore.New()
	reg := registry.New()
	reg.Register(models.ExecutorDescriptor{ID: "coder", Capabilities: []string{"code", "testing"}},
		registry.ExecutorFunc(func(ctx context.Context, w models.UnitOfWork) models.WorkResult {
			return models.WorkResult{Success: true, Output: "done: " + w.Prompt}
		}))
	reg.Register(models.ExecutorDescriptor{ID: "designer", Capabilities: []string{"aesthetics"}}, nil)

	engine := delegate.New(reg)
	tools := orchestrator.ToolCallerFunc(func(ctx context.Context, ref string, params map[string]any) (any, error) {
		if ref == "broken" {
			return nil, errors.New("tool exploded")
		}
		return map[string]any{"tool": ref}, nil
	})
	orch, err := orchestrator.New(orchestrator.RequiredConfig{Store: store, Engine: engine}, orchestrator.WithToolCaller(tools))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	handler, err := New(Config{Store: store, Registry: reg, Engine: engine, Orchestrator: orch, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, reg: reg}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, env.srv.URL+"/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out HealthResponse
	decode(t, body, &out)
	if out.Status != "ok" || out.Executors != 2 {
		t.Errorf("unexpected health %+v", out)
	}
}

func TestInfer(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		text string
		want []string
	}{
		{"Build the parser and verify it", []string{"code", "testing"}},
		{"Design a slide deck", []string{"aesthetics", "presentation"}},
		{"hello there", []string{"code"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/infer", InferRequest{Text: tt.text})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
			}
			var out InferResponse
			decode(t, body, &out)
			if !reflect.DeepEqual(out.Capabilities, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, out.Capabilities)
			}
		})
	}
}

func TestExecutors(t *testing.T) {
	env := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, env.srv.URL+"/v1/executors", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out []ExecutorResponse
	decode(t, body, &out)
	if len(out) != 2 || out[0].ID != "coder" || out[1].ID != "designer" {
		t.Fatalf("expected registration order, got %+v", out)
	}
	if !out[0].Bound || out[1].Bound {
		t.Errorf("unexpected bound flags %+v", out)
	}
	if out[0].Availability != "available" {
		t.Errorf("expected default availability, got %q", out[0].Availability)
	}
}

func TestSetAvailability(t *testing.T) {
	env := newTestServer(t)

	resp, body := doJSON(t, http.MethodPut, env.srv.URL+"/v1/executors/designer/availability", AvailabilityRequest{Availability: "busy"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if env.reg.IsAvailable("designer") {
		t.Error("expected designer to be busy")
	}

	resp, _ = doJSON(t, http.MethodPut, env.srv.URL+"/v1/executors/ghost/availability", AvailabilityRequest{Availability: "busy"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown executor, got %d", resp.StatusCode)
	}
}

func TestDelegate(t *testing.T) {
	env := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/delegate", DelegateRequest{Prompt: "write the code"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out DelegateResponse
	decode(t, body, &out)
	if !reflect.DeepEqual(out.Capabilities, []string{"code"}) {
		t.Errorf("expected inferred [code], got %v", out.Capabilities)
	}
	if !out.Result.Success || out.Result.Output != "done: write the code" {
		t.Errorf("unexpected result %+v", out.Result)
	}
	if out.Result.Metadata[delegate.MetaExecutorID] != "coder" {
		t.Errorf("expected executor_id coder, got %v", out.Result.Metadata)
	}
}

func TestDelegate_NoMatch(t *testing.T) {
	env := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/delegate", DelegateRequest{
		Prompt:       "render a video",
		Capabilities: []string{"multimodal"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out DelegateResponse
	decode(t, body, &out)
	if out.Result.Success || out.Result.Error == "" {
		t.Errorf("expected failed result, got %+v", out.Result)
	}
}

func TestDelegate_BadRequest(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name string
		req  DelegateRequest
	}{
		{"blank prompt", DelegateRequest{Prompt: "   "}},
		{"bad duration", DelegateRequest{Prompt: "code", MaxDuration: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/delegate", tt.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

type planBody struct {
	Report struct {
		PlanID   string        `json:"plan_id"`
		Parent   models.Task   `json:"parent"`
		Children []models.Task `json:"children"`
		Buckets  []int         `json:"buckets"`
	} `json:"report"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error"`
}

func TestExecutePlan(t *testing.T) {
	env := newTestServer(t)

	plan := PlanRequest{
		Name: "ship it",
		Actions: []ActionRequest{
			{ID: "fetch", Target: TargetRequest{Kind: "tool-call", ExecutorRef: "search"}},
			{ID: "write", Description: "write the code", Order: 1},
		},
	}
	resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/plans", plan)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out planBody
	decode(t, body, &out)
	if !out.Succeeded {
		t.Fatalf("expected success, got %s", body)
	}
	if out.Report.PlanID == "" {
		t.Error("expected a generated plan id")
	}
	if out.Report.Parent.Status != models.TaskStatusCompleted {
		t.Errorf("expected parent completed, got %s", out.Report.Parent.Status)
	}
	if len(out.Report.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(out.Report.Children))
	}
	if !reflect.DeepEqual(out.Report.Buckets, []int{0, 1}) {
		t.Errorf("expected buckets [0 1], got %v", out.Report.Buckets)
	}

	resp, body = doJSON(t, http.MethodGet, env.srv.URL+"/v1/tasks/"+out.Report.Parent.ID+"/children", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var children TaskListResponse
	decode(t, body, &children)
	if children.Count != 2 {
		t.Errorf("expected 2 children listed, got %d", children.Count)
	}
}

func TestExecutePlan_BucketFailure(t *testing.T) {
	env := newTestServer(t)

	plan := PlanRequest{
		Actions: []ActionRequest{
			{ID: "boom", Target: TargetRequest{Kind: "tool-call", ExecutorRef: "broken"}},
			{ID: "later", Description: "write code", Order: 1},
		},
	}
	resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/plans", plan)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out planBody
	decode(t, body, &out)
	if out.Succeeded {
		t.Fatal("expected failure")
	}
	if out.Report.Parent.Status != models.TaskStatusFailed {
		t.Errorf("expected parent failed, got %s", out.Report.Parent.Status)
	}
	if out.Error == "" {
		t.Error("expected error message")
	}
	if len(out.Report.Buckets) != 1 {
		t.Errorf("expected later bucket skipped, got %v", out.Report.Buckets)
	}
}

func TestExecutePlan_Invalid(t *testing.T) {
	env := newTestServer(t)

	plan := PlanRequest{
		Actions: []ActionRequest{
			{ID: "dup", Target: TargetRequest{Kind: "tool-call", ExecutorRef: "x"}},
			{ID: "dup", Target: TargetRequest{Kind: "tool-call", ExecutorRef: "x"}},
		},
	}
	resp, body := doJSON(t, http.MethodPost, env.srv.URL+"/v1/plans", plan)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	if n := len(env.store.All()); n != 0 {
		t.Errorf("expected no tasks created, got %d", n)
	}
}

func TestTasks(t *testing.T) {
	env := newTestServer(t)

	done := env.store.Create(models.TaskSpec{Name: "done", Kind: models.TaskKindToolCall})
	env.store.Start(done.ID)
	env.store.Finish(done.ID, "ok")
	env.store.Create(models.TaskSpec{Name: "waiting", Kind: models.TaskKindToolCall})

	resp, body := doJSON(t, http.MethodGet, env.srv.URL+"/v1/tasks?status=completed", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var list TaskListResponse
	decode(t, body, &list)
	if list.Count != 1 || list.Tasks[0].ID != done.ID {
		t.Errorf("expected only the completed task, got %+v", list.Tasks)
	}

	resp, _ = doJSON(t, http.MethodGet, env.srv.URL+"/v1/tasks?status=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, env.srv.URL+"/v1/tasks/"+done.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var task models.Task
	decode(t, body, &task)
	if task.Status != models.TaskStatusCompleted || task.Result != "ok" {
		t.Errorf("unexpected task %+v", task)
	}

	resp, body = doJSON(t, http.MethodGet, env.srv.URL+"/v1/tasks/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	decode(t, body, &envelope)
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected not_found code, got %+v", envelope.Error)
	}
}
