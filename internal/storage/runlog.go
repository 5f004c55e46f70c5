package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reelgate/internal/stream"
)

// RunEvent is one persisted stream message.
type RunEvent struct {
	ID        int64              `json:"id"`
	RunID     string             `json:"runId"`
	Type      stream.MessageType `json:"type"`
	Data      json.RawMessage    `json:"data"`
	CreatedAt time.Time          `json:"timestamp"`
}

// RunSummary describes one run in the record log.
type RunSummary struct {
	RunID     string             `json:"runId"`
	Events    int                `json:"events"`
	LastType  stream.MessageType `json:"lastType"`
	StartedAt time.Time          `json:"startedAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AppendRunEvent records msg for runID. Messages are kept in append order.
func (db *DB) AppendRunEvent(ctx context.Context, runID string, msg stream.Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msg.Type, err)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, type, data, created_at) VALUES (?, ?, ?, ?)",
		runID, string(msg.Type), string(data), msg.Timestamp.UTC(),
	)
	return err
}

// ListRunEvents returns every recorded message of a run in order.
func (db *DB) ListRunEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, run_id, type, data, created_at FROM run_events WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var (
			ev   RunEvent
			typ  string
			data string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &typ, &data, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = stream.MessageType(typ)
		ev.Data = json.RawMessage(data)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentRuns returns the most recently active runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(ctx, `
		SELECT e.run_id, COUNT(*), MIN(e.created_at), MAX(e.created_at),
		       (SELECT type FROM run_events l WHERE l.run_id = e.run_id ORDER BY l.id DESC LIMIT 1)
		FROM run_events e
		GROUP BY e.run_id
		ORDER BY MAX(e.id) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s             RunSummary
			first, latest string
			last          string
		)
		if err := rows.Scan(&s.RunID, &s.Events, &first, &latest, &last); err != nil {
			return nil, err
		}
		s.LastType = stream.MessageType(last)
		s.StartedAt = parseTime(first)
		s.UpdatedAt = parseTime(latest)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRunEventsBefore removes records older than cutoff.
func (db *DB) DeleteRunEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM run_events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// parseTime reads an aggregate over a DATETIME column, which the driver
// hands back as text.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
