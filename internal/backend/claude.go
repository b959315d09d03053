package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/relay/internal/claude"
	"github.com/ShayCichocki/relay/pkg/models"
)

// DefaultSystemPrompt frames a Claude executor when none is configured.
const DefaultSystemPrompt = "You are a specialist executor in a multi-step plan. " +
	"Complete the assigned work and reply with the result only."

// ClaudeExecutor answers a unit of work with one Messages API call.
type ClaudeExecutor struct {
	runner *claude.Runner
	system string
}

// NewClaudeExecutor creates an executor over runner. An empty system prompt
// uses DefaultSystemPrompt.
func NewClaudeExecutor(runner *claude.Runner, system string) *ClaudeExecutor {
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	return &ClaudeExecutor{runner: runner, system: system}
}

// Execute renders work into a prompt. Constraints.MaxTokens caps the response.
func (e *ClaudeExecutor) Execute(ctx context.Context, work models.UnitOfWork) models.WorkResult {
	resp, err := e.runner.Complete(ctx, claude.Request{
		System:    e.system,
		Prompt:    RenderPrompt(work),
		MaxTokens: int64(work.Constraints.MaxTokens),
	})
	if err != nil {
		return models.Failed("", err.Error())
	}
	return models.WorkResult{
		Success: true,
		Output:  resp.Text,
		Metadata: map[string]any{
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
			"stop_reason":   resp.StopReason,
		},
	}
}

// RenderPrompt builds the user message for work: the prompt, then context
// entries in key order, then the requested output format.
func RenderPrompt(work models.UnitOfWork) string {
	var b strings.Builder
	b.WriteString(work.Prompt)

	if len(work.Context) > 0 {
		keys := make([]string, 0, len(work.Context))
		for k := range work.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\nCONTEXT:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, renderValue(work.Context[k]))
		}
	}
	if work.Constraints.OutputFormat != "" {
		fmt.Fprintf(&b, "\nRespond in %s format.", work.Constraints.OutputFormat)
	}
	return b.String()
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
