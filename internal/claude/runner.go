package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Request is a single text-in/text-out call.
type Request struct {
	System string
	Prompt string
	// MaxTokens overrides the client default when positive.
	MaxTokens int64
}

// Response carries the concatenated text blocks and usage of one call.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	StopReason   string
}

// Runner provides simple text-in/text-out Claude API calls.
type Runner struct {
	client *Client
}

// NewRunner creates a new API runner.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Client returns the underlying client.
func (r *Runner) Client() *Client {
	return r.client
}

// Complete executes req and returns the text response.
func (r *Runner) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.client.MaxTokens()
	}

	params := anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := r.client.inner.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("API call failed: %w", err)
	}
	r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return Response{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		StopReason:   string(resp.StopReason),
	}, nil
}

// Run executes a prompt with an optional system message and returns the text.
func (r *Runner) Run(ctx context.Context, system, prompt string) (string, error) {
	resp, err := r.Complete(ctx, Request{System: system, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// RunJSON executes a prompt and decodes the JSON found in the response into target.
func (r *Runner) RunJSON(ctx context.Context, system, prompt string, target any) error {
	response, err := r.Run(ctx, system, prompt)
	if err != nil {
		return err
	}
	return ExtractJSON(response, target)
}

// ExtractJSON decodes the outermost JSON object or array embedded in text,
// tolerating prose or code fences around it.
func ExtractJSON(text string, target any) error {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(text, 200))
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(text, 200))
	}

	raw := text[start : end+1]
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(raw, 200))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
