package middleware

import (
	"net/http"
	"runtime/debug"

	"reelgate/internal/gateway/handlers"
	"reelgate/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. Run goroutines
// recover on their own; this only covers request handlers.
//
// Once a response has started (an SSE run stream, typically) no error body
// is written: the client sees the stream end without a terminal frame.
// http.ErrAbortHandler is re-raised so net/http drops the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := wrap(w)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log := logger.Component("gateway")
			log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bool("response_started", wrapped.started).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")

			if wrapped.started {
				return
			}
			handlers.SendError(wrapped, http.StatusInternalServerError,
				handlers.ErrCodeInternalError, "internal server error")
		}()

		next.ServeHTTP(wrapped, r)
	})
}
