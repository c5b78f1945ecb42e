// Package xaehost drives the vendor engineering environment through the
// automation host, a small HTTP service running next to the IDE on the build
// machine. Each session maps to one IDE instance on the host.
package xaehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Client opens sessions on an automation host.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

var _ ports.ToolchainFactory = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Compiles can take
// minutes, so its timeout must allow for them.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client for the host at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Minute},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type openRequest struct {
	Version string `json:"version"`
}

type openResponse struct {
	ID string `json:"id"`
}

// Open starts an IDE instance of the given toolchain version.
func (c *Client) Open(ctx context.Context, version string) (ports.ToolchainSession, error) {
	var out openResponse
	if err := c.call(ctx, http.MethodPost, "/sessions", openRequest{Version: version}, &out); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("open session: host returned no session id")
	}
	c.logger.Debug("toolchain session opened", "session", out.ID, "version", version)
	return &Session{client: c, path: "/sessions/" + url.PathEscape(out.ID), ID: out.ID}, nil
}

// call sends body as JSON and decodes the response into out when out is not
// nil. 503 is the host's busy signal.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return domain.ErrToolchainBusy
	}
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
