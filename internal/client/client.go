package client

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

	"github.com/charmbracelet/log"
	"github.com/desertthunder/drivecopy/internal/jobs"
	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/shared"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultBackoff  = 2 * time.Second
)

// Client is an HTTP client for the job API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
	backoff    time.Duration
	logger     *log.Logger
}

// NewClient creates a [Client] for the server at baseURL. Zero poll values use
// [DefaultInterval] and [DefaultBackoff].
func NewClient(baseURL string, poll shared.PollConfig, logger *log.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		interval:   poll.Interval(),
		backoff:    poll.Backoff(),
		logger:     logger,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	return c
}

// SetHTTPClient replaces the underlying [http.Client].
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Submit creates a job. When the server could not resolve the destination the returned
// response still carries the id of the failed job alongside an error wrapping [shared.ErrDestination].
func (c *Client) Submit(ctx context.Context, req jobs.SubmitRequest) (*server.SubmitResponse, error) {
	var resp server.SubmitResponse
	apiErr, err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp)
	if err != nil {
		if apiErr != nil && apiErr.JobID != "" {
			return &server.SubmitResponse{JobID: apiErr.JobID}, err
		}
		return nil, err
	}
	return &resp, nil
}

// Get fetches a job snapshot. An unknown id yields an error wrapping [shared.ErrJobNotFound].
func (c *Client) Get(ctx context.Context, id string) (*server.JobView, error) {
	var view server.JobView
	if _, err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	if view.Job == nil {
		return nil, fmt.Errorf("%w: empty job response", shared.ErrAPIRequest)
	}
	return &view, nil
}

// List fetches every job known to the server, newest first.
func (c *Client) List(ctx context.Context) ([]server.JobView, error) {
	var resp server.ListResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Delete removes a job record. It reports false when the server did not know the id.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	var resp server.DeleteResponse
	_, err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, &resp)
	if errors.Is(err, shared.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// Cancel stops a processing job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
	return err
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var resp server.HealthResponse
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends a JSON request and decodes a 2xx body into out. Non-2xx responses are decoded as
// [server.ErrorResponse] and mapped onto the shared sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (*server.ErrorResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}
	return nil, nil
}

func decodeError(status int, data []byte) (*server.ErrorResponse, error) {
	var apiErr server.ErrorResponse
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}

	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = shared.ErrJobNotFound
	case status == http.StatusBadRequest:
		sentinel = shared.ErrInvalidInput
	case status == http.StatusConflict:
		sentinel = shared.ErrInvalidArgument
	case apiErr.Code == server.CodeDestination:
		sentinel = shared.ErrDestination
	case status >= 500:
		sentinel = shared.ErrServiceUnavailable
	default:
		sentinel = shared.ErrAPIRequest
	}
	return &apiErr, fmt.Errorf("%w: %s (status %d)", sentinel, apiErr.Message, status)
}
