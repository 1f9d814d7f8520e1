// Package client talks to the dispatcher's HTTP API. It is shared by the
// courierctl CLI and the terminal monitor.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courier_mesh/internal/domain"
)

const DefaultBaseURL = "http://127.0.0.1:8092"

// APIError is a non-2xx answer from the dispatcher.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type ObservationQuery struct {
	Kind     domain.ObservationKind
	JobID    string
	WorkerID string
	Limit    int
}

type ReportResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.getJSON(ctx, "/healthz", &out)
}

// WaitHealth polls /healthz until it answers or the timeout passes.
func (c *Client) WaitHealth(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := c.Health(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for /healthz: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(400 * time.Millisecond):
		}
	}
}

func (c *Client) Workers(ctx context.Context) ([]domain.RegistryEntry, error) {
	var out []domain.RegistryEntry
	if err := c.getJSON(ctx, "/workers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Jobs(ctx context.Context) ([]domain.RegistryEntry, error) {
	var out []domain.RegistryEntry
	if err := c.getJSON(ctx, "/jobs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWorker(ctx context.Context, spec domain.WorkerSpec) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/workers", spec, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateJob(ctx context.Context, spec domain.JobSpec) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/jobs", spec, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// WorkerAction posts activate, deactivate or destroy for one worker.
func (c *Client) WorkerAction(ctx context.Context, id, action string) error {
	return c.postJSON(ctx, "/workers/"+url.PathEscape(id)+"/"+action, nil, nil)
}

func (c *Client) JobAction(ctx context.Context, id, action string) error {
	return c.postJSON(ctx, "/jobs/"+url.PathEscape(id)+"/"+action, nil, nil)
}

func (c *Client) Status(ctx context.Context) (domain.StatusReport, error) {
	var out domain.StatusReport
	if err := c.getJSON(ctx, "/status", &out); err != nil {
		return domain.StatusReport{}, err
	}
	return out, nil
}

func (c *Client) StatusText(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/status/text", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) Observations(ctx context.Context, q ObservationQuery) ([]domain.Observation, error) {
	params := url.Values{}
	if q.Kind != "" {
		params.Set("kind", string(q.Kind))
	}
	if q.JobID != "" {
		params.Set("job", q.JobID)
	}
	if q.WorkerID != "" {
		params.Set("worker", q.WorkerID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/observations"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []domain.Observation
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportReport asks the dispatcher to write the current status below its
// report directory. An empty path lets the dispatcher pick a name.
func (c *Client) ExportReport(ctx context.Context, path string) (ReportResult, error) {
	var out ReportResult
	if err := c.postJSON(ctx, "/reports", map[string]any{"path": path}, &out); err != nil {
		return ReportResult{}, err
	}
	return out, nil
}

// ReportLog lists report writes, allowed and denied, newest first.
func (c *Client) ReportLog(ctx context.Context, limit int) ([]domain.ReportFileLog, error) {
	path := "/reports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.ReportFileLog
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadReport fetches an exported report by its path below the report
// directory.
func (c *Client) ReadReport(ctx context.Context, path string) ([]byte, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return c.do(ctx, http.MethodGet, "/reports/"+strings.Join(segments, "/"), nil)
}

// RegistryMirror lists the registry as persisted by the dispatcher. An empty
// kind returns workers and jobs.
func (c *Client) RegistryMirror(ctx context.Context, kind domain.AgentKind) ([]domain.RegistryEntry, error) {
	path := "/registry"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(string(kind))
	}
	var out []domain.RegistryEntry
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}
