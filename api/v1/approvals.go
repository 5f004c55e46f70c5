package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"reelgate/internal/approval"
	"reelgate/internal/gateway/handlers"
	"reelgate/pkg/logger"
)

// HandleListApprovals returns pending approvals, oldest first.
func (r *Router) HandleListApprovals(w http.ResponseWriter, req *http.Request) {
	if r.approvals == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Approval manager not available")
		return
	}

	pending, err := r.approvals.ListPending(req.Context())
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if pending == nil {
		pending = []*approval.Request{}
	}
	handlers.SendJSON(w, http.StatusOK, ApprovalsListResponse{Approvals: pending, Count: len(pending)})
}

// HandleGetApproval returns one approval.
func (r *Router) HandleGetApproval(w http.ResponseWriter, req *http.Request) {
	if r.approvals == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Approval manager not available")
		return
	}

	got, err := r.approvals.Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		sendApprovalError(w, err)
		return
	}
	handlers.SendJSON(w, http.StatusOK, got)
}

// HandleDecide records a decision and resumes the suspended run. Unknown
// or consumed ids are 404; a second decision before the run consumed the
// first is 409.
func (r *Router) HandleDecide(w http.ResponseWriter, req *http.Request) {
	if r.approvals == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Approval manager not available")
		return
	}

	var body DecideRequest
	if err := handlers.DecodeJSON(req, &body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	id := mux.Vars(req)["id"]
	decided, err := r.approvals.Decide(req.Context(), id, body.Approved, body.ExtraArgs)
	if err != nil {
		sendApprovalError(w, err)
		return
	}

	log := logger.Component("api")
	log.Info().
		Str("approval_id", id).
		Str("run_id", decided.RunID).
		Str("tool", decided.ToolName).
		Bool("approved", body.Approved).
		Str("user_id", userID(req, "")).
		Msg("approval decided")

	message := fmt.Sprintf("%s rejected, the run will continue without it", decided.ToolName)
	if body.Approved {
		message = fmt.Sprintf("%s approved, the run is resuming", decided.ToolName)
	}
	handlers.SendJSON(w, http.StatusOK, DecideResponse{Status: decided.Status, Message: message})
}

// HandleCleanupApprovals removes approvals older than maxAgeHours (default:
// the configured max age).
func (r *Router) HandleCleanupApprovals(w http.ResponseWriter, req *http.Request) {
	if r.approvals == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Approval manager not available")
		return
	}

	maxAge := r.maxAge
	if s := req.URL.Query().Get("maxAgeHours"); s != "" {
		hours, err := strconv.ParseFloat(s, 64)
		if err != nil || hours < 0 {
			handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "maxAgeHours must be a non-negative number")
			return
		}
		maxAge = time.Duration(hours * float64(time.Hour))
	}

	removed, err := r.approvals.Cleanup(req.Context(), maxAge)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	handlers.SendJSON(w, http.StatusOK, CleanupResponse{Removed: removed})
}

// HandleApprovalHistory returns the audit trail of one approval.
func (r *Router) HandleApprovalHistory(w http.ResponseWriter, req *http.Request) {
	if r.runLog == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run log not available")
		return
	}
	entries, err := r.runLog.ApprovalHistory(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	sendAudit(w, entries)
}

func sendApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, approval.ErrAlreadyDecided):
		handlers.SendError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
