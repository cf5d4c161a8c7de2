// Package api is the HTTP client for the intake platform backend.
//
// Every call takes a context. Non-2xx responses are returned as *StatusError
// carrying the backend's detail message.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

// DefaultTimeout bounds non-streaming requests and the wait for response headers.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the bearer token for authenticated calls. An empty
// token means the request is sent anonymously.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

// Opts holds configuration for Client.
type Opts struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	TokenSource TokenSource
}

// Option defines a functional option for configuring the client.
type Option func(*Opts)

// WithBaseURL sets the backend origin, such as "https://intake.example.com".
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient replaces the HTTP client. Its own timeout, if any, also
// applies to streamed chat responses.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout sets the per-request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(o *Opts) { o.TokenSource = ts }
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
}

// NewClient creates a Client from options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		cfg.HTTPClient = &http.Client{Transport: transport}
	}
	slog.Debug("api.NewClient: configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout, "token_source_set", cfg.TokenSource != nil)
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		tokens:  cfg.TokenSource,
	}
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("read access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do sends a request and returns the response if it is 2xx. Other responses
// are drained, closed and converted into a *StatusError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("api.Client: request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	slog.Debug("api.Client: response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(req.Method, req.URL.Path, resp)
	}
	return resp, nil
}

// doJSON sends body as JSON and decodes a 2xx response into out, which may be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}
