package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"reelgate/internal/cron"
	"reelgate/internal/gateway/handlers"
)

// HandleListJobs lists the maintenance jobs with their next and last runs.
func (r *Router) HandleListJobs(w http.ResponseWriter, req *http.Request) {
	if r.scheduler == nil {
		handlers.SendJSON(w, http.StatusOK, JobsListResponse{Jobs: []Job{}})
		return
	}

	jobs := make([]Job, 0)
	for _, name := range r.scheduler.Jobs() {
		job := Job{Name: name}
		if next, ok := r.scheduler.NextRun(name); ok && !next.IsZero() {
			job.NextRun = &next
		}
		if last, ok := r.scheduler.LastExecution(name); ok {
			job.LastRun = &last
		}
		jobs = append(jobs, job)
	}
	handlers.SendJSON(w, http.StatusOK, JobsListResponse{Jobs: jobs})
}

// HandleRunJob runs a maintenance job immediately and returns its
// execution record.
func (r *Router) HandleRunJob(w http.ResponseWriter, req *http.Request) {
	if r.scheduler == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Scheduler not available")
		return
	}

	exec, err := r.scheduler.RunNow(req.Context(), mux.Vars(req)["name"])
	switch {
	case errors.Is(err, cron.ErrJobNotFound):
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, cron.ErrJobRunning):
		handlers.SendError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		// a failed execution is still a completed request; the record says why
		handlers.SendJSON(w, http.StatusOK, exec)
	}
}
