package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ShayCichocki/relay/pkg/models"
)

// DefaultHTTPTimeout bounds a single remote call when none is configured.
const DefaultHTTPTimeout = 60 * time.Second

// StatusError wraps non-2xx responses from remote backends.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote error: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPExecutor posts a unit of work as JSON to a remote endpoint and decodes
// a WorkResult from the response.
type HTTPExecutor struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewHTTPExecutor creates an executor for endpoint. A zero timeout uses
// DefaultHTTPTimeout.
func NewHTTPExecutor(endpoint string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPExecutor{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Execute performs one POST. Transport and status failures become failed results.
func (e *HTTPExecutor) Execute(ctx context.Context, work models.UnitOfWork) models.WorkResult {
	var res models.WorkResult
	if err := postJSON(ctx, e.HTTPClient, e.Endpoint, work, &res); err != nil {
		return models.Failed("", err.Error())
	}
	if !res.Success && res.Error == "" {
		res.Error = "remote executor reported failure"
	}
	return res
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, out any) error {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
