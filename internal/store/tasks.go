package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Task is a work item inside a scope. ParentTaskID is empty for top-level
// tasks.
type Task struct {
	ID           string
	ScopeID      string
	OwnerID      string
	ParentTaskID string
	Name         string
	Description  string
	Completed    bool
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const taskColumns = `id, scope_id, owner_id, parent_task_id, name, description, completed, completed_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{}
	if err := row.Scan(&t.ID, &t.ScopeID, &t.OwnerID, &t.ParentTaskID, &t.Name, &t.Description,
		&t.Completed, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTask describes a task to create.
type NewTask struct {
	ScopeID      string
	OwnerID      string
	ParentTaskID string
	Name         string
	Description  string
}

// CreateTask inserts a task.
func (tx *Tx) CreateTask(ctx context.Context, nt NewTask) (*Task, error) {
	if nt.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}

	id, err := generateID("t_")
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}

	ts := now()
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO tasks (id, scope_id, owner_id, parent_task_id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nt.ScopeID, nt.OwnerID, nt.ParentTaskID, nt.Name, nt.Description, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &Task{
		ID:           id,
		ScopeID:      nt.ScopeID,
		OwnerID:      nt.OwnerID,
		ParentTaskID: nt.ParentTaskID,
		Name:         nt.Name,
		Description:  nt.Description,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}

// GetTask returns a task by ID, or nil if not found.
func (tx *Tx) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(tx.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (tx *Tx) queryTasks(ctx context.Context, what, where string, args ...any) ([]*Task, error) {
	rows, err := tx.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", what, err)
	}
	return tasks, nil
}

// ListTasksInScope returns every task of a scope, subtasks included.
func (tx *Tx) ListTasksInScope(ctx context.Context, scopeID string) ([]*Task, error) {
	return tx.queryTasks(ctx, "list tasks", "scope_id = ?", scopeID)
}

// ListSubtasks returns the direct children of a task.
func (tx *Tx) ListSubtasks(ctx context.Context, taskID string) ([]*Task, error) {
	return tx.queryTasks(ctx, "list subtasks", "parent_task_id = ?", taskID)
}

// UpdateTaskContent overwrites a task's name and description.
func (tx *Tx) UpdateTaskContent(ctx context.Context, id, name, description string) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, now(), id,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return checkAffected(res, "task", id)
}

// CompleteTask marks a task and all of its subtasks complete at the given time.
func (tx *Tx) CompleteTask(ctx context.Context, id string, at time.Time) error {
	return tx.setCompleted(ctx, id, true, &at)
}

// UncompleteTask clears completion on a task and all of its subtasks.
func (tx *Tx) UncompleteTask(ctx context.Context, id string) error {
	return tx.setCompleted(ctx, id, false, nil)
}

func (tx *Tx) setCompleted(ctx context.Context, id string, completed bool, at *time.Time) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		completed, nullTime(at), now(), id,
	)
	if err != nil {
		return fmt.Errorf("set task completion: %w", err)
	}
	if err := checkAffected(res, "task", id); err != nil {
		return err
	}

	children, err := tx.ListSubtasks(ctx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := tx.setCompleted(ctx, child.ID, completed, at); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTask removes a task and its subtasks. Tags, task configs and
// subtask rows go with it; sync log rows are kept.
func (tx *Tx) DeleteTask(ctx context.Context, id string) error {
	children, err := tx.ListSubtasks(ctx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := tx.DeleteTask(ctx, child.ID); err != nil {
			return err
		}
	}

	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete task tags: %w", err)
	}
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM task_github_configs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete task configs: %w", err)
	}
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(res, "task", id)
}
