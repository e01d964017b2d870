package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/query"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Flush keeps SSE streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// middleware wraps every route with request ids, CORS, rate limiting,
// access logs and request metrics.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := logger.With(r.Context(), zap.String("request_id", id))
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w}
		route := routeLabel(r.URL.Path)
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			code := strconv.Itoa(status)
			elapsed := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())
			if route == "/healthz" || route == "/metrics" {
				return
			}
			logger.Info(ctx, "request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", elapsed),
				zap.String("remote", r.RemoteAddr),
			)
		}()

		if s.cors(rec, r) {
			return
		}
		if s.limiter != nil && !exemptFromLimit(route) && !s.limiter.Allow() {
			rec.Header().Set("Retry-After", "1")
			writeProblem(rec, http.StatusTooManyRequests, "Too Many Requests", "request rate exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(rec, r)
	})
}

// cors sets CORS headers for allowed origins and reports whether the request
// was a preflight that has been answered.
func (s *Server) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.Config.AllowOrigins) == 0 {
		return false
	}
	allowed := slices.Contains(s.Config.AllowOrigins, "*") || slices.Contains(s.Config.AllowOrigins, origin)
	if !allowed {
		return false
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Expose-Headers", "X-Request-Id")
	if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
		return false
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id, X-Role, X-Region, X-District, X-User-Id")
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return true
}

func exemptFromLimit(route string) bool {
	return route == "/healthz" || route == "/readyz" || route == "/metrics"
}

// routeLabel collapses ids so the path label stays low-cardinality.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/openapi.yaml", "/openapi.json", "/docs", "/docs/console",
		"/v1/debug", "/v1/faults", "/v1/targets", "/v1/performance", "/v1/performance/feeders":
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		return "other"
	}
	if parts[1] == "targets" && len(parts) == 3 {
		return "/v1/targets/:id"
	}
	if _, ok := query.Lookup(parts[1]); !ok {
		return "other"
	}
	switch {
	case len(parts) == 2:
		return "/v1/" + parts[1]
	case len(parts) == 3 && parts[2] == "events":
		return "/v1/" + parts[1] + "/events"
	case len(parts) == 3:
		return "/v1/" + parts[1] + "/:id"
	}
	return "other"
}
