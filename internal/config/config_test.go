package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/relay/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// isolate points XDG at an empty dir and moves into a fresh cwd.
func isolate(t *testing.T) (xdg, cwd string) {
	t.Helper()
	xdg = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("RELAY_LOG_LEVEL", "")
	t.Chdir(cwd)
	return xdg, cwd
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.Mode != "order" {
		t.Errorf("expected mode 'order', got %q", cfg.Orchestrator.Mode)
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("expected max tokens 4096, got %d", cfg.Anthropic.MaxTokens)
	}
	if !cfg.Journal.Enabled {
		t.Error("expected journal enabled by default")
	}
	if cfg.Timeouts.HTTP != 60*time.Second {
		t.Errorf("expected http timeout 60s, got %v", cfg.Timeouts.HTTP)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("RELAY_TEST_KEY", "sk-ant-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
log:
  level: debug
anthropic:
  api_key: ${RELAY_TEST_KEY}
  model: claude-3-5-haiku-latest
  max_tokens: 1024
executors:
  - id: coder
    capabilities: [code, testing]
    kind: claude
  - id: designer
    capabilities: [aesthetics]
    availability: busy
    kind: http
    endpoint: http://localhost:9000/execute
tools:
  search: http://localhost:9100/search
orchestrator:
  mode: depends_on
  max_parallel: 4
timeouts:
  http: 5s
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("expected expanded api key, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.MaxTokens != 1024 {
		t.Errorf("expected max tokens 1024, got %d", cfg.Anthropic.MaxTokens)
	}
	if len(cfg.Executors) != 2 {
		t.Fatalf("expected 2 executors, got %d", len(cfg.Executors))
	}
	if cfg.Executors[1].Endpoint != "http://localhost:9000/execute" {
		t.Errorf("unexpected endpoint %q", cfg.Executors[1].Endpoint)
	}
	if got := cfg.Tools["search"]; got != "http://localhost:9100/search" {
		t.Errorf("expected search tool url, got %q", got)
	}
	if cfg.Orchestrator.Mode != "depends_on" || cfg.Orchestrator.MaxParallel != 4 {
		t.Errorf("unexpected orchestrator config %+v", cfg.Orchestrator)
	}
	if cfg.Timeouts.HTTP != 5*time.Second {
		t.Errorf("expected http timeout 5s, got %v", cfg.Timeouts.HTTP)
	}
	// Untouched sections keep their defaults.
	if !cfg.Journal.Enabled {
		t.Error("expected journal default to survive")
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing executor id",
			content: "executors:\n  - capabilities: [code]\n",
			wantErr: "missing id",
		},
		{
			name:    "duplicate executor id",
			content: "executors:\n  - id: a\n  - id: a\n",
			wantErr: "duplicate id",
		},
		{
			name:    "bad availability",
			content: "executors:\n  - id: a\n    availability: sleepy\n",
			wantErr: "invalid availability",
		},
		{
			name:    "http without endpoint",
			content: "executors:\n  - id: a\n    kind: http\n",
			wantErr: "needs an endpoint",
		},
		{
			name:    "unknown kind",
			content: "executors:\n  - id: a\n    kind: grpc\n",
			wantErr: "unknown kind",
		},
		{
			name:    "unknown mode",
			content: "orchestrator:\n  mode: random\n",
			wantErr: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.content)

			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	xdg, cwd := isolate(t)

	writeFile(t, filepath.Join(xdg, "relay", "config.yaml"), `
anthropic:
  model: user-model
orchestrator:
  mode: depends_on
`)
	writeFile(t, filepath.Join(cwd, ProjectFileName), `
anthropic:
  model: project-model
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Anthropic.Model != "project-model" {
		t.Errorf("expected project model to win, got %q", cfg.Anthropic.Model)
	}
	if cfg.Orchestrator.Mode != "depends_on" {
		t.Errorf("expected user mode to survive merge, got %q", cfg.Orchestrator.Mode)
	}
}

func TestLoad_FindsProjectConfigInParent(t *testing.T) {
	_, cwd := isolate(t)

	writeFile(t, filepath.Join(cwd, ProjectFileName), "server:\n  addr: 0.0.0.0:9999\n")
	nested := filepath.Join(cwd, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	if got := GetProjectConfigPath(); got != filepath.Join(cwd, ProjectFileName) {
		t.Errorf("expected project config in parent, got %q", got)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9999" {
		t.Errorf("expected server addr from parent config, got %q", cfg.Server.Addr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-123456")
	t.Setenv("RELAY_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-env-key-123456" {
		t.Errorf("expected env api key, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected env log level, got %q", cfg.Log.Level)
	}
}

func TestLoadFromPath_IgnoresEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-123456")
	t.Setenv("RELAY_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log:\n  level: debug\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "" || cfg.Log.Level != "debug" {
		t.Errorf("env leaked into file config: key=%q level=%q", cfg.Anthropic.APIKey, cfg.Log.Level)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	xdg, _ := isolate(t)

	cfg := Default()
	cfg.Anthropic.Model = "saved-model"
	cfg.Orchestrator.MaxParallel = 3
	cfg.Timeouts.HTTP = 15 * time.Second

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := GetUserConfigPath(); got != filepath.Join(xdg, "relay", "config.yaml") {
		t.Errorf("unexpected user config path %q", got)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Anthropic.Model != "saved-model" {
		t.Errorf("expected saved model, got %q", loaded.Anthropic.Model)
	}
	if loaded.Orchestrator.MaxParallel != 3 {
		t.Errorf("expected max parallel 3, got %d", loaded.Orchestrator.MaxParallel)
	}
	if loaded.Timeouts.HTTP != 15*time.Second {
		t.Errorf("expected http timeout 15s, got %v", loaded.Timeouts.HTTP)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/relay" {
		t.Errorf("expected /custom/config/relay, got %q", dir)
	}
}

func TestExecutorDescriptor(t *testing.T) {
	e := ExecutorConfig{ID: "x", Capabilities: []string{"code"}}
	d := e.Descriptor()
	if d.Availability != models.AvailabilityAvailable {
		t.Errorf("expected default availability, got %q", d.Availability)
	}

	e.Capabilities[0] = "mutated"
	if d.Capabilities[0] != "code" {
		t.Error("descriptor should not alias config capabilities")
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config"}}

		key, src, err := ResolveAPIKey(cfg)
		if err != nil || key != "sk-ant-env" || src != KeySourceEnv {
			t.Errorf("got %q %q %v", key, src, err)
		}
	})

	t.Run("config file", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config"}}

		key, src, err := ResolveAPIKey(cfg)
		if err != nil || key != "sk-ant-config" || src != KeySourceConfig {
			t.Errorf("got %q %q %v", key, src, err)
		}
	})

	t.Run("bedrock needs no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Anthropic: AnthropicConfig{UseBedrock: true}}

		_, src, err := ResolveAPIKey(cfg)
		if err != nil || src != KeySourceBedrock {
			t.Errorf("got %q %v", src, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		_, src, err := ResolveAPIKey(&Config{})
		if !errors.Is(err, ErrNoAPIKey) || src != KeySourceNone {
			t.Errorf("expected ErrNoAPIKey, got %q %v", src, err)
		}
	})
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-abcdefghijklmnop", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
