package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Tag is a name unique within a scope.
type Tag struct {
	ID      string
	ScopeID string
	Name    string
}

// GetTag returns the named tag of a scope, or nil if not found.
func (tx *Tx) GetTag(ctx context.Context, scopeID, name string) (*Tag, error) {
	t := &Tag{}
	err := tx.tx.QueryRowContext(ctx,
		`SELECT id, scope_id, name FROM tags WHERE scope_id = ? AND name = ?`, scopeID, name,
	).Scan(&t.ID, &t.ScopeID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// GetOrCreateTag returns the named tag of a scope, creating it if needed.
func (tx *Tx) GetOrCreateTag(ctx context.Context, scopeID, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is required")
	}
	t, err := tx.GetTag(ctx, scopeID, name)
	if err != nil || t != nil {
		return t, err
	}

	id, err := generateID("tag_")
	if err != nil {
		return nil, fmt.Errorf("generate tag id: %w", err)
	}
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO tags (id, scope_id, name, created_at) VALUES (?, ?, ?, ?)`,
		id, scopeID, name, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return &Tag{ID: id, ScopeID: scopeID, Name: name}, nil
}

// TaskTags returns the tags attached to a task ordered by name.
func (tx *Tx) TaskTags(ctx context.Context, taskID string) ([]Tag, error) {
	rows, err := tx.tx.QueryContext(ctx, `
		SELECT t.id, t.scope_id, t.name FROM tags t
		JOIN task_tags tt ON tt.tag_id = t.id
		WHERE tt.task_id = ?
		ORDER BY t.name`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.ScopeID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list task tags: iterate: %w", err)
	}
	return tags, nil
}

// AttachTag links a tag to a task. Attaching twice is a no-op.
func (tx *Tx) AttachTag(ctx context.Context, taskID, tagID string) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID)
	if err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// DetachTag unlinks a tag from a task. Detaching an absent tag is a no-op.
func (tx *Tx) DetachTag(ctx context.Context, taskID, tagID string) error {
	_, err := tx.tx.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?`, taskID, tagID)
	if err != nil {
		return fmt.Errorf("detach tag: %w", err)
	}
	return nil
}

// ReplaceTaskTags sets the task's tags to exactly tagIDs.
func (tx *Tx) ReplaceTaskTags(ctx context.Context, taskID string, tagIDs []string) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}
	for _, id := range tagIDs {
		if err := tx.AttachTag(ctx, taskID, id); err != nil {
			return err
		}
	}
	return nil
}
