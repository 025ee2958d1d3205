package base

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/infra"
)

func TestNewClient(t *testing.T) {
	client := NewClient()
	if client == nil {
		t.Fatal("NewClient returned nil")
	}

	if client.HTTPClient == nil {
		t.Error("HTTPClient is nil")
	}
	if client.Logger == nil {
		t.Error("Logger is nil")
	}
	if client.CircuitBreaker == nil {
		t.Error("CircuitBreaker is nil")
	}
	if client.Semaphore == nil {
		t.Error("Semaphore is nil")
	}
	if client.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", client.UserAgent, DefaultUserAgent)
	}
}

func TestNewClientWithOptions(t *testing.T) {
	customHTTP := &http.Client{Timeout: 10 * time.Second}
	customLogger := slog.Default()
	customBreaker := infra.NewCircuitBreaker(infra.BreakerConfig{FailureThreshold: 2})

	client := NewClient(
		WithHTTPClient(customHTTP),
		WithLogger(customLogger),
		WithCircuitBreaker(customBreaker),
		WithMaxConcurrent(2),
	)

	if client.HTTPClient != customHTTP {
		t.Error("custom HTTP client was not set")
	}
	if client.Logger != customLogger {
		t.Error("custom logger was not set")
	}
	if client.CircuitBreaker != customBreaker {
		t.Error("custom circuit breaker was not set")
	}
	if cap(client.Semaphore) != 2 {
		t.Errorf("semaphore capacity = %d, want 2", cap(client.Semaphore))
	}
}

func TestClient_DefaultValues(t *testing.T) {
	client := NewClient()

	if client.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
	}
	if cap(client.Semaphore) != MaxConcurrentRequests {
		t.Errorf("semaphore capacity = %d, want %d", cap(client.Semaphore), MaxConcurrentRequests)
	}
}

func TestWithTimeout(t *testing.T) {
	client := NewClient(WithTimeout(500 * time.Millisecond))
	if client.HTTPClient.Timeout != 500*time.Millisecond {
		t.Errorf("timeout = %v, want 500ms", client.HTTPClient.Timeout)
	}
}

func TestWithMaxConcurrent_IgnoresNonPositive(t *testing.T) {
	client := NewClient(WithMaxConcurrent(0))
	if cap(client.Semaphore) != MaxConcurrentRequests {
		t.Errorf("semaphore capacity = %d, want %d", cap(client.Semaphore), MaxConcurrentRequests)
	}
}

func TestClient_AcquireSlot_ContextCanceled(t *testing.T) {
	client := &Client{
		Semaphore: make(chan struct{}, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Fill the slot
	client.Semaphore <- struct{}{}
	cancel()

	if err := client.AcquireSlot(ctx); err == nil {
		t.Error("expected error when context is canceled")
	}
}

func TestClient_CheckCircuitBreaker_Open(t *testing.T) {
	client := NewClient()

	if err := client.CheckCircuitBreaker(); err != nil {
		t.Errorf("unexpected error from CheckCircuitBreaker: %v", err)
	}

	for range 10 {
		client.RecordFailure()
	}

	err := client.CheckCircuitBreaker()
	var open *infra.ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if open.Failures != 10 {
		t.Errorf("Failures = %d, want 10", open.Failures)
	}
}

func TestClient_RecordSuccess(t *testing.T) {
	client := NewClient()

	client.RecordFailure()
	client.RecordFailure()
	client.RecordSuccess()

	if stats := client.CircuitBreakerStats(); stats.ConsecutiveFails != 0 {
		t.Errorf("consecutive fails = %d, want 0 after success", stats.ConsecutiveFails)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"longer than max length", 10, "longer tha..."},
		{"", 5, ""},
		{"abcd", 3, "abc..."},
	}

	for _, tt := range tests {
		if result := Truncate(tt.input, tt.maxLen); result != tt.expected {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestReadAndClose(t *testing.T) {
	t.Run("normal response", func(t *testing.T) {
		resp := &http.Response{Body: io.NopCloser(strings.NewReader("<soap/>"))}

		data, err := readAndClose(resp)
		if err != nil {
			t.Fatalf("readAndClose failed: %v", err)
		}
		if string(data) != "<soap/>" {
			t.Errorf("got %q, want '<soap/>'", string(data))
		}
	})

	t.Run("too large", func(t *testing.T) {
		resp := &http.Response{Body: io.NopCloser(bytes.NewReader(make([]byte, MaxResponseBytes+100)))}

		if _, err := readAndClose(resp); err == nil {
			t.Error("expected error for oversized response")
		}
	})

	t.Run("read error", func(t *testing.T) {
		resp := &http.Response{Body: io.NopCloser(&errorReader{})}

		if _, err := readAndClose(resp); err == nil {
			t.Error("expected error when read fails")
		}
	})
}

func TestDo_PostBody(t *testing.T) {
	var gotMethod, gotContentType, gotUA, gotAction, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotAction = r.Header.Get("SOAPAction")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), Request{
		URL:         server.URL,
		Body:        []byte("<request/>"),
		ContentType: "text/xml; charset=utf-8",
		Headers:     map[string]string{"SOAPAction": `""`},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotContentType != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if gotAction != `""` {
		t.Errorf("SOAPAction = %q", gotAction)
	}
	if gotBody != "<request/>" {
		t.Errorf("body = %q", gotBody)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "<ok/>" {
		t.Errorf("response = %d %q", resp.StatusCode, resp.Body)
	}
}

func TestDo_GetWithoutBody(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := NewClient().Do(context.Background(), Request{URL: server.URL}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %q, want GET", gotMethod)
	}
}

func TestDo_SingleAttemptOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("fault"))
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), Request{URL: server.URL, Body: []byte("x")})
	if err != nil {
		t.Fatalf("Do should return the 500 response, got error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDo_CircuitOpen(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
	}))
	defer server.Close()

	client := NewClient()
	for range 10 {
		client.RecordFailure()
	}

	_, err := client.Do(context.Background(), Request{URL: server.URL})
	var open *infra.ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 0 {
		t.Error("open circuit must not reach the server")
	}
}

func TestDo_TransportErrorRecordsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient()
	if _, err := client.Do(context.Background(), Request{URL: url}); err == nil {
		t.Fatal("expected error for closed server")
	}
	if got := client.CircuitBreakerStats().ConsecutiveFails; got != 1 {
		t.Errorf("consecutive fails = %d, want 1", got)
	}
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithTimeout(50 * time.Millisecond))

	start := time.Now()
	_, err := client.Do(context.Background(), Request{URL: server.URL})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("request took %v, timeout not enforced", elapsed)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewClient().Do(ctx, Request{URL: server.URL}); err == nil {
		t.Error("expected error when context is canceled")
	}
}

// stepClock is a settable clock for circuit breaker tests
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// halfOpenClient returns a client whose breaker has opened and whose reset
// timeout has passed, so the next Allow takes the single half-open slot.
func halfOpenClient(t *testing.T, maxConcurrent int) (*Client, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := infra.NewCircuitBreaker(infra.BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Now:              clock.Now,
	})
	client := NewClient(WithCircuitBreaker(breaker), WithMaxConcurrent(maxConcurrent))
	client.RecordFailure()
	clock.Advance(2 * time.Minute)
	return client, clock
}

func TestDo_SlotWaitKeepsHalfOpenSlot(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, clock := halfOpenClient(t, 1)

	// Hold the only slot so the next call gives up while waiting
	if err := client.AcquireSlot(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Do(ctx, Request{URL: server.URL}); err == nil {
		t.Fatal("expected error while the slot is held")
	}
	client.ReleaseSlot()

	clock.Advance(time.Hour)
	resp, err := client.Do(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("half-open slot should still be available: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	client.RecordSuccess()

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	if state := client.CircuitBreaker.State(); state != infra.CircuitClosed {
		t.Errorf("state = %v, want closed", state)
	}
}

func TestDo_CanceledHalfOpenRequestIsReleased(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, _ := halfOpenClient(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Do(ctx, Request{URL: server.URL}); err == nil {
		t.Fatal("expected error for canceled request")
	}

	if state := client.CircuitBreaker.State(); state != infra.CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", state)
	}
	if !client.CircuitBreaker.Allow() {
		t.Error("a canceled request must hand its half-open slot back")
	}
}

func TestClient_Timeout(t *testing.T) {
	if got := NewClient().Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", got, DefaultTimeout)
	}
	if got := NewClient(WithTimeout(time.Second)).Timeout(); got != time.Second {
		t.Errorf("Timeout = %v, want 1s", got)
	}
	if got := (&Client{}).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout without HTTP client = %v, want %v", got, DefaultTimeout)
	}
}

// errorReader is a reader that always returns an error
type errorReader struct{}

func (e *errorReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
