package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/clayforge/trigger/event"
)

// HTTPExecutor hands workflow requests to the external workflow builder
// over HTTP. A 2xx response completes the execution; the response body
// (truncated) becomes the result summary.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

// NewHTTPExecutor creates an executor posting to url. client may be nil
// for http.DefaultClient; the dispatcher's execution timeout arrives via
// the context, so the client needs no timeout of its own.
func NewHTTPExecutor(url string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{url: url, client: client}
}

const maxSummaryLen = 512

// Execute implements Executor.
func (x *HTTPExecutor) Execute(ctx context.Context, req *event.WorkflowRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal workflow request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build workflow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("workflow executor call: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxSummaryLen))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("workflow executor returned %d: %s", resp.StatusCode, data)
	}
	return string(data), nil
}
