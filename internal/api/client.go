package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"montage/internal/services"
)

// Client talks to the daemon's HTTP control API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// StatusError is returned for non-2xx responses. It unwraps to the service
// sentinel matching the status code so callers can use errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict:
		return services.ErrValidation
	case http.StatusUnauthorized:
		return services.ErrConfiguration
	}
	return nil
}

// NewClient returns a client for the daemon listening on bind. A bind without
// a scheme is treated as host:port over plain http.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health checks that the daemon is reachable.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	return c.do(ctx, http.MethodGet, "/healthz", &resp)
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns returns runs optionally filtered by status names.
func (c *Client) ListRuns(ctx context.Context, statuses []string) ([]Run, error) {
	path := "/api/runs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp RunListResponse
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// DescribeRun returns one run with its segments and tasks.
func (c *Client) DescribeRun(ctx context.Context, id string) (*Run, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// CreateRun submits a new run.
func (c *Client) CreateRun(ctx context.Context, req CreateRunRequest) (*CreateRunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var resp CreateRunResponse
	if err := c.doBody(ctx, http.MethodPost, "/api/runs", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve releases a run held in review.
func (c *Client) Approve(ctx context.Context, id string) (*Task, error) {
	return c.action(ctx, id, "approve")
}

// Retry resumes a failed run from its failing stage.
func (c *Client) Retry(ctx context.Context, id string) (*Task, error) {
	return c.action(ctx, id, "retry")
}

func (c *Client) action(ctx context.Context, id, verb string) (*Task, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(id)+"/"+verb, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	return c.doBody(ctx, method, path, nil, out)
}

func (c *Client) doBody(ctx context.Context, method, path string, payload io.Reader, out any) error {
	if c == nil || c.baseURL == "" {
		return errors.New("daemon api address not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload ErrorResponse
		_ = json.Unmarshal(body, &payload)
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(payload.Error)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
