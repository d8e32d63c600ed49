// internal/benchmark/client.go
package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mwiater/sweepwatch/internal/logging"
)

// DefaultBaseURL is the service prefix used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080/api/v1/benchmark"

// APIError is returned for every non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsStillRunning reports whether err is the 202 the service returns for a run
// with no results yet.
func IsStillRunning(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusAccepted
}

// Client talks to the load-test service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithAPIKey sets the key sent as X-API-Key on mutating calls.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient builds a Client for baseURL, falling back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalised service prefix.
func (c *Client) BaseURL() string { return c.baseURL }

// Status fetches GET /status/{id}.
func (c *Client) Status(ctx context.Context, runID string) (RunStatus, error) {
	var out RunStatus
	if _, err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(runID), nil, &out, false); err != nil {
		return RunStatus{}, fmt.Errorf("get status %s: %w", runID, err)
	}
	return out, nil
}

// Result fetches GET /result/{id}. A 202 comes back as an *APIError for which
// IsStillRunning is true.
func (c *Client) Result(ctx context.Context, runID string) (Result, error) {
	var out Result
	status, err := c.doJSON(ctx, http.MethodGet, "/result/"+url.PathEscape(runID), nil, &out, false)
	if err != nil {
		return Result{}, fmt.Errorf("get result %s: %w", runID, err)
	}
	if status == http.StatusAccepted {
		return Result{}, fmt.Errorf("get result %s: %w", runID, &APIError{Status: status, Detail: "Benchmark still running"})
	}
	return out, nil
}

// Start submits POST /run and returns the new run id.
func (c *Client) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	if err := req.Validate(); err != nil {
		return StartResponse{}, err
	}
	var out StartResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/run", req, &out, true); err != nil {
		return StartResponse{}, fmt.Errorf("start run: %w", err)
	}
	if out.RunID == "" {
		return StartResponse{}, fmt.Errorf("start run: response has no run_id")
	}
	return out, nil
}

// Stop submits POST /run/{id}/stop.
func (c *Client) Stop(ctx context.Context, runID string) error {
	if _, err := c.doJSON(ctx, http.MethodPost, "/run/"+url.PathEscape(runID)+"/stop", nil, nil, true); err != nil {
		return fmt.Errorf("stop run %s: %w", runID, err)
	}
	return nil
}

// Delete submits DELETE /run/{id}.
func (c *Client) Delete(ctx context.Context, runID string) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, "/run/"+url.PathEscape(runID), nil, nil, true); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// History fetches one page of GET /history.
func (c *Client) History(ctx context.Context, q HistoryQuery) (RunList, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Status != "" {
		values.Set("status", string(q.Status))
	}
	path := "/history"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out RunList
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return RunList{}, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Compare submits POST /compare for two or more runs.
func (c *Client) Compare(ctx context.Context, runIDs []string) (ComparisonResult, error) {
	if len(runIDs) < 2 {
		return ComparisonResult{}, fmt.Errorf("compare needs at least two run ids")
	}
	// The service wraps the result as {"comparison": {...}}; a bare object is
	// accepted too.
	var out struct {
		Comparison *ComparisonResult `json:"comparison"`
		ComparisonResult
	}
	body := map[string][]string{"run_ids": runIDs}
	if _, err := c.doJSON(ctx, http.MethodPost, "/compare", body, &out, false); err != nil {
		return ComparisonResult{}, fmt.Errorf("compare runs: %w", err)
	}
	if out.Comparison != nil {
		return *out.Comparison, nil
	}
	return out.ComparisonResult, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if _, err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out, false); err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	return out, nil
}

// Export downloads GET /result/{id}/export in the given format ("csv" or
// "xlsx") and returns the raw file body.
func (c *Client) Export(ctx context.Context, runID, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	path := "/result/" + url.PathEscape(runID) + "/export?format=" + url.QueryEscape(format)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", runID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export body: %w", err)
	}
	logging.LogRequest("in", c.baseURL, runID, "export", fmt.Sprintf("status=%d bytes=%d", resp.StatusCode, len(body)))
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("export %s: %w", runID, decodeAPIError(resp.StatusCode, body))
	}
	return body, nil
}

// ExportFileName is the default file name of an export, matching the name the
// service puts in Content-Disposition.
func ExportFileName(runID, format string) string {
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	prefix = Slugify(prefix)
	if prefix == "" {
		prefix = "run"
	}
	return fmt.Sprintf("%s_benchmark.%s", prefix, format)
}

// ProgressURL derives the WebSocket endpoint for runID from the base URL.
func (c *Client) ProgressURL(runID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(runID)
	u.RawQuery = ""
	return u.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, mutating bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		logging.LogRequest("out", c.baseURL, "", method+" "+path, payload)
	} else {
		logging.LogRequest("out", c.baseURL, "", method+" "+path, nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutating && c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// doJSON performs one request and decodes a 2xx body into out. It returns the
// HTTP status so callers can tell 200 from 202.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, mutating bool) (int, error) {
	req, err := c.newRequest(ctx, method, path, body, mutating)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	logging.LogRequest("in", c.baseURL, "", method+" "+path, bytes.TrimSpace(data))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, decodeAPIError(resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusAccepted || out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return apiErr
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		apiErr.Detail = detail
		return apiErr
	}
	// Validation errors carry a structured detail; keep it readable.
	apiErr.Detail = string(payload.Detail)
	return apiErr
}
