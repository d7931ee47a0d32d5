package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// workerTimeout bounds the synchronous leg of a dispatch. The worker only
// has to acknowledge the job; the heavy lifting is reported back through
// the webhook, so a slow acknowledgement is treated as a failure.
const workerTimeout = 10 * time.Second

// WorkerClient submits jobs to an external AI worker endpoint. Submission
// is fire-and-acknowledge: a 2xx response means the worker accepted the
// job and will report the outcome to the callback URL.
type WorkerClient struct {
	httpClient *http.Client
	url        string
}

// NewWorkerClient creates a client for one worker endpoint.
func NewWorkerClient(url string) *WorkerClient {
	return &WorkerClient{
		httpClient: &http.Client{Timeout: workerTimeout},
		url:        url,
	}
}

// submitResponse is the optional acknowledgement body a worker may return.
type submitResponse struct {
	ExecutionID string `json:"executionId"`
}

// Submit POSTs the job payload to the worker. requestID is propagated as
// X-Request-Id for cross-service tracing. Returns the worker's execution
// id when it supplies one; an empty body or non-JSON 2xx response is
// accepted with an empty execution id.
func (c *WorkerClient) Submit(ctx context.Context, requestID string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal worker payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Str("url", c.url).Dur("duration", duration).Err(err).Msg("Worker request failed")
		return "", fmt.Errorf("worker request: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().Str("url", c.url).Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Worker response")

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read worker response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("worker returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var ack submitResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &ack); err != nil {
			// A 2xx with an unparseable body still counts as accepted.
			log.Warn().Str("url", c.url).Err(err).Msg("Worker acknowledgement body not parseable")
		}
	}
	return ack.ExecutionID, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
