package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

// fakeMessages serves /v1/messages with a fixed text reply and records the request body.
func fakeMessages(t *testing.T, reply string, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-sonnet-4-20250514",
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 11, "output_tokens": 7},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q", client.Model())
	}
	if client.MaxTokens() != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", client.MaxTokens())
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestNewClient_EnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	if _, err := NewClient(ClientConfig{}); err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("got %q", got)
	}
	if got := translateModelForBedrock("custom-model"); got != "custom-model" {
		t.Errorf("unknown model should pass through, got %q", got)
	}
}

func TestRunner_Complete(t *testing.T) {
	srv, got := fakeMessages(t, "hello there", http.StatusOK)
	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, MaxTokens: 256})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	r := NewRunner(client)

	resp, err := r.Complete(context.Background(), Request{System: "be brief", Prompt: "hi", MaxTokens: 99})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello there" || resp.InputTokens != 11 || resp.OutputTokens != 7 {
		t.Errorf("resp = %+v", resp)
	}
	if (*got)["max_tokens"] != float64(99) {
		t.Errorf("max_tokens sent = %v", (*got)["max_tokens"])
	}
	if _, ok := (*got)["system"]; !ok {
		t.Error("system prompt not sent")
	}

	in, out := client.Tracker().Total()
	if in != 11 || out != 7 || client.Tracker().Calls() != 1 {
		t.Errorf("tracker = %s", client.Tracker())
	}
}

func TestRunner_APIError(t *testing.T) {
	srv, _ := fakeMessages(t, "", http.StatusBadRequest)
	client, _ := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})

	if _, err := NewRunner(client).Run(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if client.Tracker().Calls() != 0 {
		t.Error("failed call should not be tracked")
	}
}

func TestRunner_RunJSON(t *testing.T) {
	srv, _ := fakeMessages(t, "Sure! ```json\n{\"name\": \"plan\", \"n\": 2}\n```", http.StatusOK)
	client, _ := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})

	var out struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	if err := NewRunner(client).RunJSON(context.Background(), "", "give json", &out); err != nil {
		t.Fatalf("RunJSON: %v", err)
	}
	if out.Name != "plan" || out.N != 2 {
		t.Errorf("out = %+v", out)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, false},
		{"array", `here: [1,2,3] done`, false},
		{"no json", "nothing to see", true},
		{"broken", `{"a": }`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v any
			err := ExtractJSON(tt.text, &v)
			if (err != nil) != tt.wantErr {
				t.Errorf("ExtractJSON(%q) err = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}
