package http

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

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Client is the worker side of the build API.
type Client struct {
	base string
	http *http.Client
}

var _ ports.JobClaimer = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClaimNext asks the server for the next job. No content means nothing to
// claim.
func (c *Client) ClaimNext(ctx context.Context, toolchainVersion, workerID string) (*domain.BuildJob, error) {
	resp, err := c.post(ctx, "/build/claim", claimRequest{ToolchainVersion: toolchainVersion, WorkerID: workerID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, domain.ErrClaimConflict
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var job domain.BuildJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode claimed job: %w", err)
	}
	return &job, nil
}

func (c *Client) MarkInProgress(ctx context.Context, jobID string) error {
	resp, err := c.post(ctx, "/build/"+url.PathEscape(jobID)+"/start", struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) ReportResult(ctx context.Context, jobID string, result domain.BuildResult) error {
	resp, err := c.post(ctx, "/build/"+url.PathEscape(jobID)+"/result", result)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return resp, nil
}

// checkStatus maps API errors back onto domain errors.
func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = domain.ErrJobNotFound
	case http.StatusConflict:
		sentinel = domain.ErrInvalidTransition
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, body.Error)
	}
	return errors.New(resp.Status + ": " + body.Error)
}
