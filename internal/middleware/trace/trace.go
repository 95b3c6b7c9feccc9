package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

const (
	// HeaderRequestID carries the request id in and out.
	HeaderRequestID = "X-Request-ID"

	maxInboundIDLength = 64
)

// Middleware tags each request with an id and counts requests.
type Middleware struct {
	requests  atomic.Int64
	failures  atomic.Int64
	totalTime atomic.Int64 // microseconds
}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// Middleware reuses a well-formed inbound X-Request-ID or mints one.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if !validInboundID(id) {
			id = NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(WithRequestID(r.Context(), id)))

		m.requests.Add(1)
		m.totalTime.Add(time.Since(start).Microseconds())
		if sw.status >= http.StatusInternalServerError {
			m.failures.Add(1)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// validInboundID accepts short printable ASCII ids without spaces.
func validInboundID(id string) bool {
	if id == "" || len(id) > maxInboundIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

func NewRequestID() string {
	return "req_" + uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id, or "" outside a traced request.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestID extracts the request id from r, for log.RequestIDMiddleware.
func RequestID(r *http.Request) string {
	return FromContext(r.Context())
}

type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
	// AverageResponseTime is in microseconds.
	AverageResponseTime int64
}

func (m *Middleware) GetMetrics() Metrics {
	n := m.requests.Load()
	out := Metrics{TotalRequests: n, ServerErrors: m.failures.Load()}
	if n > 0 {
		out.AverageResponseTime = m.totalTime.Load() / n
	}
	return out
}
