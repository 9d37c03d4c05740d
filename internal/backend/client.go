package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/herdsync/internal/record"
)

const (
	DefaultTimeout = 10 * time.Second

	// maxBody caps how much of a response is read. Snapshots of a large
	// tenant stay well under this.
	maxBody = 32 << 20
)

// Config for Client.
type Config struct {
	BaseURL string
	Tokens  TokenSource

	// Timeout bounds each request. 0 means DefaultTimeout.
	Timeout time.Duration

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client is the HTTP implementation of the backend surface.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.ParseRequestURI(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := cfg.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: tr},
		baseURL: strings.TrimRight(base, "/"),
		tokens:  tokens,
		logger:  logger,
	}, nil
}

// Create registers one pending record and returns the backend id.
func (c *Client) Create(ctx context.Context, rec record.Pending) (int64, error) {
	var out CreateResponse
	body := RecordBody{Fields: rec.Fields, CreatedAt: rec.CreatedAt}
	if err := c.doJSON(ctx, http.MethodPost, PathRegister, body, &out); err != nil {
		return 0, err
	}
	return int64(out.ID), nil
}

// Update overwrites the record identified by key with f. There is no
// version check; the last writer wins.
func (c *Client) Update(ctx context.Context, key record.DedupKey, f record.Fields) error {
	f.AnimalNumber = key.AnimalNumber
	body := RecordBody{Fields: f, CreatedAt: key.CreatedAt}
	return c.doJSON(ctx, http.MethodPut, PathRegisterUpdate, body, nil)
}

// Delete removes the record identified by key.
func (c *Client) Delete(ctx context.Context, key record.DedupKey) error {
	body := KeyBody{AnimalNumber: key.AnimalNumber, CreatedAt: key.CreatedAt}
	return c.doJSON(ctx, http.MethodDelete, PathRegister, body, nil)
}

// FetchSnapshot returns every record the service holds for the caller.
func (c *Client) FetchSnapshot(ctx context.Context) ([]record.Cached, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, PathSnapshot, nil, &raw); err != nil {
		return nil, err
	}
	return DecodeSnapshot(raw)
}

// Ping reports whether the service host is reachable. Any HTTP response,
// whatever its status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: http.MethodHead, Path: "/", Err: err}
	}
	_ = resp.Body.Close()
	return nil
}

// doJSON sends in (when non-nil) as JSON and decodes a 2xx body into out
// (when non-nil). Non-2xx responses become *HTTPError.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: no token", ErrUnauthenticated)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: marshal json: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: new request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	c.logger.Debug("backend call",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(raw)), 512),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: unmarshal json: %w", method, path, err)
	}
	return nil
}
