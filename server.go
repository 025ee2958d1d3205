package main

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-registry-mcp-server/metrics"
	"github.com/olgasafonova/vat-registry-mcp-server/tools"
)

// RateLimiter is a fixed-window request limiter keyed by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	rate     int
	interval time.Duration

	stopCh    chan struct{}
	closeOnce sync.Once
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter allows rate requests per interval for each IP. Close stops
// the background cleanup of idle entries.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:  make(map[string]*window),
		rate:     rate,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether ip may make another request in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[ip]
	if !ok || now.Sub(w.start) >= rl.interval {
		rl.windows[ip] = &window{start: now, count: 1}
		return true
	}
	if w.count >= rl.rate {
		return false
	}
	w.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, w := range rl.windows {
				if now.Sub(w.start) >= rl.interval {
					delete(rl.windows, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stopCh)
	})
}

// SecurityConfig limits what a single client can send to the MCP endpoint.
type SecurityConfig struct {
	RateLimit   int   // requests per minute per IP, 0 disables
	MaxBodySize int64 // bytes, 0 disables
}

// SecurityMiddleware applies rate limiting and body size limits in front of
// the MCP handler.
type SecurityMiddleware struct {
	next    http.Handler
	logger  *slog.Logger
	config  SecurityConfig
	limiter *RateLimiter
}

// NewSecurityMiddleware wraps next.
func NewSecurityMiddleware(next http.Handler, logger *slog.Logger, config SecurityConfig) *SecurityMiddleware {
	sm := &SecurityMiddleware{
		next:   next,
		logger: logger,
		config: config,
	}
	if config.RateLimit > 0 {
		sm.limiter = NewRateLimiter(config.RateLimit, time.Minute)
	}
	return sm
}

func (sm *SecurityMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if sm.limiter != nil {
		ip := clientIP(r)
		if !sm.limiter.Allow(ip) {
			sm.logger.Warn("Rate limit exceeded", "ip", ip)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	if sm.config.MaxBodySize > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, sm.config.MaxBodySize)
	}

	sm.next.ServeHTTP(w, r)
}

// Close releases the rate limiter.
func (sm *SecurityMiddleware) Close() {
	if sm.limiter != nil {
		sm.limiter.Close()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// circuitReporter exposes the VIES client state for the health endpoint.
type circuitReporter interface {
	CircuitBreakerStats() infra.CircuitBreakerStats
	InFlightLookups() int
}

type healthResponse struct {
	Status   string                    `json:"status"`
	Name     string                    `json:"name"`
	Version  string                    `json:"version"`
	VIES     infra.CircuitBreakerStats `json:"vies"`
	InFlight int                       `json:"vies_in_flight"`

	// Unavailable lists the tools that fail outright while the circuit is not closed.
	Unavailable []string `json:"unavailable_tools,omitempty"`
}

// newRouter builds the HTTP surface: /mcp (streamable HTTP), /metrics and
// /healthz. The returned func releases the security middleware.
func newRouter(server *mcp.Server, vies circuitReporter, logger *slog.Logger, security SecurityConfig) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	secured := NewSecurityMiddleware(mcpHandler, logger, security)
	r.Handle("/mcp", secured)

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Name:     ServerName,
			Version:  ServerVersion,
			VIES:     vies.CircuitBreakerStats(),
			InFlight: vies.InFlightLookups(),
		}
		// An open circuit only degrades lookups; validation still works
		if resp.VIES.State != infra.CircuitClosed.String() {
			resp.Status = "degraded"
			for _, spec := range tools.ToolsByRegistry("vies") {
				resp.Unavailable = append(resp.Unavailable, spec.Name)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("Failed to write health response", "error", err)
		}
	})

	return r, secured.Close
}

// metricsMiddleware records HTTP request counts and latencies by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start).Seconds())
	})
}
