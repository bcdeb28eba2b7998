package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScopeGitHubConfig holds one user's integration settings for a scope.
// A collaborator row with IsSharedRepo mirrors the owner named by
// SourceUserID; IsDetached marks a frozen snapshot of the owner's settings.
type ScopeGitHubConfig struct {
	ID              string
	ScopeID         string
	UserID          string
	Enabled         bool
	RepoID          *int64
	RepoOwner       string
	RepoName        string
	ProjectID       string
	ProjectName     string
	MilestoneNumber *int
	MilestoneTitle  string
	LabelName       string
	IsSharedRepo    bool
	IsDetached      bool
	SourceUserID    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasRepository reports whether both repository owner and name are set.
func (c *ScopeGitHubConfig) HasRepository() bool {
	return c != nil && c.RepoOwner != "" && c.RepoName != ""
}

// RepoFullName returns "owner/name", or "" when no repository is set.
func (c *ScopeGitHubConfig) RepoFullName() string {
	if !c.HasRepository() {
		return ""
	}
	return c.RepoOwner + "/" + c.RepoName
}

const scopeConfigColumns = `id, scope_id, user_id, enabled, repo_id, repo_owner, repo_name,
	project_id, project_name, milestone_number, milestone_title, label_name,
	is_shared_repo, is_detached, source_user_id, created_at, updated_at`

func scanScopeConfig(row interface{ Scan(...any) error }) (*ScopeGitHubConfig, error) {
	c := &ScopeGitHubConfig{}
	err := row.Scan(&c.ID, &c.ScopeID, &c.UserID, &c.Enabled, &c.RepoID, &c.RepoOwner, &c.RepoName,
		&c.ProjectID, &c.ProjectName, &c.MilestoneNumber, &c.MilestoneTitle, &c.LabelName,
		&c.IsSharedRepo, &c.IsDetached, &c.SourceUserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetScopeConfig returns the (scope, user) config, or nil if none exists.
func (tx *Tx) GetScopeConfig(ctx context.Context, scopeID, userID string) (*ScopeGitHubConfig, error) {
	c, err := scanScopeConfig(tx.tx.QueryRowContext(ctx,
		`SELECT `+scopeConfigColumns+` FROM scope_github_configs WHERE scope_id = ? AND user_id = ?`,
		scopeID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scope config: %w", err)
	}
	return c, nil
}

// ListScopeConfigs returns every user's config for a scope.
func (tx *Tx) ListScopeConfigs(ctx context.Context, scopeID string) ([]*ScopeGitHubConfig, error) {
	rows, err := tx.tx.QueryContext(ctx,
		`SELECT `+scopeConfigColumns+` FROM scope_github_configs WHERE scope_id = ? ORDER BY created_at, id`,
		scopeID)
	if err != nil {
		return nil, fmt.Errorf("list scope configs: %w", err)
	}
	defer rows.Close()

	var configs []*ScopeGitHubConfig
	for rows.Next() {
		c, err := scanScopeConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scope config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scope configs: iterate: %w", err)
	}
	return configs, nil
}

// CreateScopeConfig inserts an empty (scope, user) config.
func (tx *Tx) CreateScopeConfig(ctx context.Context, scopeID, userID string) (*ScopeGitHubConfig, error) {
	id, err := generateID("sgc_")
	if err != nil {
		return nil, fmt.Errorf("generate scope config id: %w", err)
	}
	ts := now()
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO scope_github_configs (id, scope_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, scopeID, userID, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert scope config: %w", err)
	}
	return &ScopeGitHubConfig{ID: id, ScopeID: scopeID, UserID: userID, CreatedAt: ts, UpdatedAt: ts}, nil
}

// SaveScopeConfig writes every mutable field of c.
func (tx *Tx) SaveScopeConfig(ctx context.Context, c *ScopeGitHubConfig) error {
	c.UpdatedAt = now()
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE scope_github_configs SET
			enabled = ?, repo_id = ?, repo_owner = ?, repo_name = ?,
			project_id = ?, project_name = ?, milestone_number = ?, milestone_title = ?,
			label_name = ?, is_shared_repo = ?, is_detached = ?, source_user_id = ?, updated_at = ?
		WHERE id = ?`,
		c.Enabled, nullInt64(c.RepoID), c.RepoOwner, c.RepoName,
		c.ProjectID, c.ProjectName, nullInt(c.MilestoneNumber), c.MilestoneTitle,
		c.LabelName, c.IsSharedRepo, c.IsDetached, c.SourceUserID, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("save scope config: %w", err)
	}
	return checkAffected(res, "scope config", c.ID)
}

// TaskGitHubConfig is one user's link between a task and a remote issue.
// Empty strings and nil pointers are unset fields.
type TaskGitHubConfig struct {
	ID              string
	TaskID          string
	UserID          string
	IssueID         *int64
	IssueNodeID     string
	IssueNumber     *int
	IssueURL        string
	IssueState      string
	RepoID          *int64
	RepoOwner       string
	RepoName        string
	ProjectID       string
	ProjectName     string
	MilestoneNumber *int
	MilestoneTitle  string
	MilestoneDueOn  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasIssueLink reports whether both the issue id and number are set.
func (c *TaskGitHubConfig) HasIssueLink() bool {
	return c != nil && c.IssueID != nil && c.IssueNumber != nil
}

const taskConfigColumns = `id, task_id, user_id, issue_id, issue_node_id, issue_number, issue_url,
	issue_state, repo_id, repo_owner, repo_name, project_id, project_name,
	milestone_number, milestone_title, milestone_due_on, created_at, updated_at`

func scanTaskConfig(row interface{ Scan(...any) error }) (*TaskGitHubConfig, error) {
	c := &TaskGitHubConfig{}
	err := row.Scan(&c.ID, &c.TaskID, &c.UserID, &c.IssueID, &c.IssueNodeID, &c.IssueNumber, &c.IssueURL,
		&c.IssueState, &c.RepoID, &c.RepoOwner, &c.RepoName, &c.ProjectID, &c.ProjectName,
		&c.MilestoneNumber, &c.MilestoneTitle, &c.MilestoneDueOn, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetTaskConfig returns the (task, user) config, or nil if none exists.
func (tx *Tx) GetTaskConfig(ctx context.Context, taskID, userID string) (*TaskGitHubConfig, error) {
	c, err := scanTaskConfig(tx.tx.QueryRowContext(ctx,
		`SELECT `+taskConfigColumns+` FROM task_github_configs WHERE task_id = ? AND user_id = ?`,
		taskID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task config: %w", err)
	}
	return c, nil
}

// ListTaskConfigs returns every user's config for a task.
func (tx *Tx) ListTaskConfigs(ctx context.Context, taskID string) ([]*TaskGitHubConfig, error) {
	rows, err := tx.tx.QueryContext(ctx,
		`SELECT `+taskConfigColumns+` FROM task_github_configs WHERE task_id = ? ORDER BY created_at, id`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("list task configs: %w", err)
	}
	defer rows.Close()

	var configs []*TaskGitHubConfig
	for rows.Next() {
		c, err := scanTaskConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list task configs: iterate: %w", err)
	}
	return configs, nil
}

// CreateTaskConfig inserts an empty (task, user) config.
func (tx *Tx) CreateTaskConfig(ctx context.Context, taskID, userID string) (*TaskGitHubConfig, error) {
	id, err := generateID("tgc_")
	if err != nil {
		return nil, fmt.Errorf("generate task config id: %w", err)
	}
	ts := now()
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO task_github_configs (id, task_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, taskID, userID, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task config: %w", err)
	}
	return &TaskGitHubConfig{ID: id, TaskID: taskID, UserID: userID, CreatedAt: ts, UpdatedAt: ts}, nil
}

// SaveTaskConfig writes every mutable field of c.
func (tx *Tx) SaveTaskConfig(ctx context.Context, c *TaskGitHubConfig) error {
	c.UpdatedAt = now()
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE task_github_configs SET
			issue_id = ?, issue_node_id = ?, issue_number = ?, issue_url = ?, issue_state = ?,
			repo_id = ?, repo_owner = ?, repo_name = ?, project_id = ?, project_name = ?,
			milestone_number = ?, milestone_title = ?, milestone_due_on = ?, updated_at = ?
		WHERE id = ?`,
		nullInt64(c.IssueID), c.IssueNodeID, nullInt(c.IssueNumber), c.IssueURL, c.IssueState,
		nullInt64(c.RepoID), c.RepoOwner, c.RepoName, c.ProjectID, c.ProjectName,
		nullInt(c.MilestoneNumber), c.MilestoneTitle, nullTime(c.MilestoneDueOn), c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("save task config: %w", err)
	}
	return checkAffected(res, "task config", c.ID)
}
