package store

import (
	"context"
	"fmt"
	"time"
)

// Sync log statuses.
const (
	StatusSuccess = "success"
	StatusMissing = "missing"
	StatusFailure = "failure"
)

// SyncLogEntry is an immutable record of one synchronization attempt.
type SyncLogEntry struct {
	ID        int64
	TaskID    string
	Action    string
	Status    string
	Message   string
	CreatedAt time.Time
}

// AppendSyncLog records a synchronization attempt. Entries are never
// updated or deleted.
func (tx *Tx) AppendSyncLog(ctx context.Context, taskID, action, status, message string) (*SyncLogEntry, error) {
	switch status {
	case StatusSuccess, StatusMissing, StatusFailure:
	default:
		return nil, fmt.Errorf("invalid sync log status %q", status)
	}
	ts := now()
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO sync_logs (task_id, action, status, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, action, status, message, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("append sync log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("append sync log: last insert id: %w", err)
	}
	return &SyncLogEntry{ID: id, TaskID: taskID, Action: action, Status: status, Message: message, CreatedAt: ts}, nil
}

// ListSyncLog returns a task's entries newest first. limit <= 0 means all.
func (tx *Tx) ListSyncLog(ctx context.Context, taskID string, limit int) ([]SyncLogEntry, error) {
	query := `SELECT id, task_id, action, status, message, created_at FROM sync_logs WHERE task_id = ? ORDER BY id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	defer rows.Close()

	var entries []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Action, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sync log: iterate: %w", err)
	}
	return entries, nil
}
