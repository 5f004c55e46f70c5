// Package middleware holds the HTTP middleware chain of the gateway.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"reelgate/pkg/logger"
)

// responseWriter captures the status code and whether the response has
// started. It forwards Hijack for websocket upgrades and Flush for SSE
// streams.
type responseWriter struct {
	http.ResponseWriter
	status  int
	started bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.started = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.started = true
	return rw.ResponseWriter.Write(b)
}

// Hijack implements http.Hijacker.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// Logging logs every request except health probes.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrap(w)

		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/api/v1/health" || r.URL.Path == "/metrics" {
			return
		}

		log := logger.Component("gateway")
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("latency", time.Since(start)).
			Str("ip", getClientIP(r)).
			Msg("HTTP request")
	})
}

// HTTPObserver receives one observation per served request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
}

// Metrics reports requests to obs labelled by route template. It must be
// installed with Router.Use so the matched route is known.
func Metrics(obs HTTPObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			obs.ObserveHTTP(r.Method, route, wrapped.status, time.Since(start))
		})
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
