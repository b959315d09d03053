package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ErrUnknownTool indicates a tool-call references a tool with no endpoint.
var ErrUnknownTool = errors.New("unknown tool")

// ToolRequest is the body posted to a tool server.
type ToolRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolResponse is what a tool server returns. A non-empty Error fails the call.
type ToolResponse struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ToolClient dispatches tool-call actions to HTTP tool servers by name.
type ToolClient struct {
	endpoints  map[string]string
	httpClient *http.Client
}

// NewToolClient creates a client for the given tool name -> URL map.
func NewToolClient(endpoints map[string]string, timeout time.Duration) *ToolClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	eps := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		eps[k] = v
	}
	return &ToolClient{endpoints: eps, httpClient: &http.Client{Timeout: timeout}}
}

// CallTool posts params to the tool's endpoint and returns its output.
func (c *ToolClient) CallTool(ctx context.Context, ref string, params map[string]any) (any, error) {
	endpoint, ok := c.endpoints[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, ref)
	}

	var resp ToolResponse
	if err := postJSON(ctx, c.httpClient, endpoint, ToolRequest{Tool: ref, Params: params}, &resp); err != nil {
		return nil, fmt.Errorf("tool %s: %w", ref, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("tool %s: %s", ref, resp.Error)
	}
	return resp.Output, nil
}

// Tools returns the configured tool names, sorted.
func (c *ToolClient) Tools() []string {
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
