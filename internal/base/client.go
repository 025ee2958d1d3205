// Package base provides the shared HTTP plumbing for registry clients:
// bounded concurrency, a circuit breaker and single-attempt requests with a
// hard timeout.
package base

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/infra"
)

const (
	// DefaultTimeout bounds every registry request, connection setup included.
	DefaultTimeout = 3 * time.Second

	// MaxConcurrentRequests limits parallel registry calls
	MaxConcurrentRequests = 5

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 1 << 20

	// DefaultUserAgent identifies this service to registries.
	DefaultUserAgent = "vat-registry-mcp-server/1.0 (github.com/olgasafonova/vat-registry-mcp-server)"
)

// Client holds the HTTP client and resilience state shared by one registry.
type Client struct {
	HTTPClient     *http.Client
	Logger         *slog.Logger
	CircuitBreaker *infra.CircuitBreaker
	Semaphore      chan struct{}
	UserAgent      string
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.HTTPClient = c
	}
}

// WithTimeout replaces the default HTTP client with one using timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		client.HTTPClient = newHTTPClient(timeout)
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.Logger = l
	}
}

// WithCircuitBreaker sets a custom circuit breaker
func WithCircuitBreaker(cb *infra.CircuitBreaker) ClientOption {
	return func(client *Client) {
		client.CircuitBreaker = cb
	}
}

// WithMaxConcurrent sets how many requests may run at once.
func WithMaxConcurrent(n int) ClientOption {
	return func(client *Client) {
		if n > 0 {
			client.Semaphore = make(chan struct{}, n)
		}
	}
}

// NewClient creates a new base client with default settings
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		HTTPClient:     newHTTPClient(DefaultTimeout),
		Logger:         slog.Default(),
		CircuitBreaker: infra.NewCircuitBreaker(infra.BreakerConfig{}),
		Semaphore:      make(chan struct{}, MaxConcurrentRequests),
		UserAgent:      DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CircuitBreakerStats returns the current circuit breaker state
func (c *Client) CircuitBreakerStats() infra.CircuitBreakerStats {
	return c.CircuitBreaker.Stats()
}

// AcquireSlot blocks until a request slot is available or context is canceled
func (c *Client) AcquireSlot(ctx context.Context) error {
	select {
	case c.Semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for request slot: %w", ctx.Err())
	}
}

// ReleaseSlot releases a request slot
func (c *Client) ReleaseSlot() {
	<-c.Semaphore
}

// CheckCircuitBreaker returns nil if requests are allowed, or an error if the circuit is open
func (c *Client) CheckCircuitBreaker() error {
	if !c.CircuitBreaker.Allow() {
		stats := c.CircuitBreaker.Stats()
		return &infra.ErrCircuitOpen{
			RetryAt:  stats.RetryAt,
			Failures: stats.ConsecutiveFails,
		}
	}
	return nil
}

// Request describes a single registry call.
type Request struct {
	Method      string // defaults to GET, or POST when Body is set
	URL         string
	Body        []byte
	ContentType string
	Accept      string
	Headers     map[string]string
}

// Response is the raw registry answer. Status codes are not interpreted.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do performs exactly one HTTP request, guarded by the concurrency limit and
// the circuit breaker. Transport errors count as circuit failures; the caller
// records the outcome of requests that returned a response with
// RecordSuccess or RecordFailure once it has interpreted the status.
//
// The breaker is consulted only once a slot is held, and every path that
// gives up before reaching the registry hands back its half-open slot.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if err := c.AcquireSlot(ctx); err != nil {
		return nil, err
	}
	defer c.ReleaseSlot()

	if err := c.CheckCircuitBreaker(); err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Body != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		c.CircuitBreaker.Release()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.Accept != "" {
		req.Header.Set("Accept", r.Accept)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// A caller that gave up says nothing about the registry
		if ctx.Err() != nil {
			c.CircuitBreaker.Release()
			return nil, fmt.Errorf("request failed: %w", err)
		}
		c.CircuitBreaker.RecordFailure()
		c.Logger.Warn("Registry request failed",
			"url", r.URL,
			"error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	data, err := readAndClose(resp)
	if err != nil {
		c.CircuitBreaker.RecordFailure()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Timeout returns the per-request timeout of the HTTP client, or
// DefaultTimeout when none is set.
func (c *Client) Timeout() time.Duration {
	if c.HTTPClient != nil && c.HTTPClient.Timeout > 0 {
		return c.HTTPClient.Timeout
	}
	return DefaultTimeout
}

// RecordSuccess records a successful request with the circuit breaker
func (c *Client) RecordSuccess() {
	c.CircuitBreaker.RecordSuccess()
}

// RecordFailure records a failed request with the circuit breaker
func (c *Client) RecordFailure() {
	c.CircuitBreaker.RecordFailure()
}

// readAndClose reads the response body and closes it, rejecting bodies over MaxResponseBytes
func readAndClose(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseBytes)
	}
	return body, nil
}

// Truncate shortens a string to maxLen, adding "..." if truncated
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// newHTTPClient creates an HTTP client whose total request time, including
// dial and TLS, is bounded by timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   MaxConcurrentRequests,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
