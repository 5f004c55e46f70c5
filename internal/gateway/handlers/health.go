package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime initializes the server start time.
// Should be called when the server starts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// Uptime returns whole seconds since InitStartTime, or 0 before it.
func Uptime() int64 {
	if startTime.IsZero() {
		return 0
	}
	return int64(time.Since(startTime).Seconds())
}

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// ComponentHealth is the result of one Check.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     int64                      `json:"uptime"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

const checkTimeout = 2 * time.Second

// HealthHandler returns a health check handler. Any failing check reports
// the overall status as degraded; the response code stays 200 so load
// balancers keep routing to an instance whose optional stores are down.
func HealthHandler(version string, checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  Uptime(),
		}

		if len(names) > 0 {
			resp.Components = make(map[string]ComponentHealth, len(names))
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Components[name] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
					resp.Status = "degraded"
					continue
				}
				resp.Components[name] = ComponentHealth{Status: "healthy"}
			}
		}

		SendJSON(w, http.StatusOK, resp)
	}
}
