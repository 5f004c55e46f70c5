package v1

import (
	"net/http"
	"strings"

	"reelgate/internal/agents"
	"reelgate/internal/gateway/handlers"
)

// HandleListAgents returns the current specialist definitions.
func (r *Router) HandleListAgents(w http.ResponseWriter, req *http.Request) {
	handlers.SendJSON(w, http.StatusOK, AgentsListResponse{
		Default: r.catalog.Default(),
		Agents:  r.catalog.List(),
	})
}

// HandleSelectAgent reports which specialist a prompt would be routed to
// without starting a run.
func (r *Router) HandleSelectAgent(w http.ResponseWriter, req *http.Request) {
	var body SelectAgentRequest
	if err := handlers.DecodeJSON(req, &body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Prompt is required")
		return
	}

	def, ok := r.catalog.Select(agents.TaskDescriptor{
		Prompt:    body.Prompt,
		ProjectID: body.ProjectID,
		SegmentID: body.SegmentID,
	})
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "selected agent is not defined")
		return
	}
	handlers.SendJSON(w, http.StatusOK, SelectAgentResponse{Agent: def.Name, Tools: def.Tools})
}
