package middleware

import (
	"net/http"
	"strings"

	"reelgate/internal/capability"
	"reelgate/internal/gateway/handlers"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*capability.Claims, error)
}

// Auth requires a valid bearer token on every path not listed in open.
// Browsers cannot set headers on websocket or EventSource requests, so a
// token query parameter is accepted as well. The verified subject is stored
// with capability.WithSubject.
func Auth(v TokenVerifier, open ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(open))
	for _, p := range open {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				handlers.SendError(w, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				handlers.SendError(w, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(capability.WithSubject(r.Context(), claims.Subject)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
