package rest

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/stayloop/stayloop-backend/internal/infrastructure/cache"
	"github.com/stayloop/stayloop-backend/internal/metrics"
	securitysvc "github.com/stayloop/stayloop-backend/internal/service/security"
)

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// requestIDMiddleware assigns every request an id for log correlation
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.InfoContext(r.Context(), "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500 errors
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"An internal error occurred"}}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the whole request
func timeoutMiddleware(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware enforces the per-IP request budget and reports the
// budget state in response headers. The limiter itself fails open; the
// local fallback limiter below only engages when even the fail-open path
// is unavailable because the middleware was built without a limiter.
type RateLimitMiddleware struct {
	limiter  cache.RateLimiter
	requests int
	window   time.Duration
	metrics  *metrics.Registry

	localMu       sync.Mutex
	localLimiters map[string]*rate.Limiter
}

// NewRateLimitMiddleware creates the middleware with a request budget per
// window per client IP
func NewRateLimitMiddleware(limiter cache.RateLimiter, requests int, window time.Duration, reg *metrics.Registry) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:       limiter,
		requests:      requests,
		window:        window,
		metrics:       reg,
		localLimiters: make(map[string]*rate.Limiter),
	}
}

// Middleware returns the middleware function
func (m *RateLimitMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if m.limiter == nil {
				if !m.localAllow(ip) {
					w.Header().Set("Retry-After", strconv.Itoa(int(m.window.Seconds())))
					writeTooManyRequests(w)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			result := m.limiter.Allow(r.Context(), "ip:"+ip, m.requests, m.window)
			if m.metrics != nil {
				m.metrics.RecordRateLimit(r.Context(), result.Allowed, result.Degraded)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) localAllow(ip string) bool {
	m.localMu.Lock()
	defer m.localMu.Unlock()

	limiter, ok := m.localLimiters[ip]
	if !ok {
		perSecond := float64(m.requests) / m.window.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), m.requests)
		m.localLimiters[ip] = limiter
	}
	return limiter.Allow()
}

// BlocklistMiddleware short-circuits requests from IPs with an active block
// row. Advisory only: the threat monitor keeps evaluating events from
// blocked IPs so escalation is still recorded.
func BlocklistMiddleware(sec securitysvc.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if sec.IsIPBlocked(r.Context(), ip) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":{"code":"IP_BLOCKED","message":"Access temporarily blocked"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Too many requests"}}`))
}

// clientIP resolves the originating client IP, preferring proxy headers
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusResponseWriter captures the response status for logging
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
