package storage

import (
	"context"
	"encoding/json"
	"time"

	"reelgate/internal/approval"
)

// Audit events.
const (
	AuditRequested = "requested"
	AuditDecided   = "decided"
)

// AuditEntry is one row of the approval audit trail.
type AuditEntry struct {
	ID         int64           `json:"id"`
	ApprovalID string          `json:"approvalId"`
	RunID      string          `json:"runId"`
	Event      string          `json:"event"`
	ToolName   string          `json:"toolName"`
	AgentName  string          `json:"agentName"`
	UserID     string          `json:"userId"`
	ProjectID  string          `json:"projectId"`
	Status     approval.Status `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Arguments  json.RawMessage `json:"arguments"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// LogRequest implements approval.Auditor.
func (db *DB) LogRequest(ctx context.Context, req *approval.Request) error {
	return db.insertAudit(ctx, req, AuditRequested, "", req.CreatedAt)
}

// LogDecision implements approval.Auditor.
func (db *DB) LogDecision(ctx context.Context, req *approval.Request, reason string) error {
	at := time.Now()
	if req.DecidedAt != nil {
		at = *req.DecidedAt
	}
	return db.insertAudit(ctx, req, AuditDecided, reason, at)
}

func (db *DB) insertAudit(ctx context.Context, req *approval.Request, event, reason string, at time.Time) error {
	args, err := json.Marshal(req.Arguments)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO approval_audit
			(approval_id, run_id, event, tool_name, agent_name, user_id, project_id, status, reason, arguments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.RunID, event, req.ToolName, req.AgentName,
		req.AuthContext.UserID, req.AuthContext.ProjectID,
		string(req.Status), reason, string(args), at.UTC(),
	)
	return err
}

// ApprovalHistory returns the audit rows of one approval in order.
func (db *DB) ApprovalHistory(ctx context.Context, approvalID string) ([]AuditEntry, error) {
	return db.queryAudit(ctx, "WHERE approval_id = ? ORDER BY id", approvalID)
}

// RunApprovals returns the audit rows of every approval raised by a run.
func (db *DB) RunApprovals(ctx context.Context, runID string) ([]AuditEntry, error) {
	return db.queryAudit(ctx, "WHERE run_id = ? ORDER BY id", runID)
}

func (db *DB) queryAudit(ctx context.Context, where string, args ...any) ([]AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, approval_id, run_id, event, tool_name, agent_name, user_id, project_id,
		       status, reason, arguments, created_at
		FROM approval_audit `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			status  string
			rawArgs string
		)
		if err := rows.Scan(&e.ID, &e.ApprovalID, &e.RunID, &e.Event, &e.ToolName, &e.AgentName,
			&e.UserID, &e.ProjectID, &status, &e.Reason, &rawArgs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = approval.Status(status)
		e.Arguments = json.RawMessage(rawArgs)
		out = append(out, e)
	}
	return out, rows.Err()
}
