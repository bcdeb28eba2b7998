package api

import (
	"time"

	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
)

// TaskResponse is a task as returned by the API.
type TaskResponse struct {
	ID           string     `json:"id"`
	ScopeID      string     `json:"scope_id"`
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
}

// IssueLinkResponse is the user's effective issue link for a task.
type IssueLinkResponse struct {
	Linked          bool       `json:"linked"`
	IssueNumber     *int       `json:"issue_number,omitempty"`
	IssueURL        string     `json:"issue_url,omitempty"`
	IssueState      string     `json:"issue_state,omitempty"`
	Repository      string     `json:"repository,omitempty"`
	ProjectID       string     `json:"project_id,omitempty"`
	ProjectName     string     `json:"project_name,omitempty"`
	MilestoneNumber *int       `json:"milestone_number,omitempty"`
	MilestoneTitle  string     `json:"milestone_title,omitempty"`
	MilestoneDueOn  *time.Time `json:"milestone_due_on,omitempty"`
}

// ResultResponse is the outcome of a task sync operation.
type ResultResponse struct {
	Task     *TaskResponse      `json:"task,omitempty"`
	GitHub   *IssueLinkResponse `json:"github"`
	Unlinked bool               `json:"unlinked"`
	Warnings []string           `json:"warnings,omitempty"`
}

// TaskStatusResponse describes a task and its mirror state.
type TaskStatusResponse struct {
	Task     *TaskResponse      `json:"task"`
	GitHub   *IssueLinkResponse `json:"github"`
	CanLink  bool               `json:"can_link"`
	OpenLink bool               `json:"open_issue"`
}

// ScopeConfigRequest is the body of PUT /v1/scopes/{id}/github.
type ScopeConfigRequest struct {
	Enabled         bool   `json:"enabled"`
	RepoID          *int64 `json:"repo_id,omitempty"`
	RepoOwner       string `json:"repo_owner"`
	RepoName        string `json:"repo_name"`
	ProjectID       string `json:"project_id,omitempty"`
	ProjectName     string `json:"project_name,omitempty"`
	MilestoneNumber *int   `json:"milestone_number,omitempty"`
	MilestoneTitle  string `json:"milestone_title,omitempty"`
	LabelName       string `json:"label_name,omitempty"`
}

// ScopeConfigResponse is a scope's resolved configuration for the caller.
type ScopeConfigResponse struct {
	ScopeID           string `json:"scope_id"`
	IsOwner           bool   `json:"is_owner"`
	Enabled           bool   `json:"enabled"`
	RepoID            *int64 `json:"repo_id,omitempty"`
	Repository        string `json:"repository,omitempty"`
	ProjectID         string `json:"project_id,omitempty"`
	ProjectName       string `json:"project_name,omitempty"`
	MilestoneNumber   *int   `json:"milestone_number,omitempty"`
	MilestoneTitle    string `json:"milestone_title,omitempty"`
	Label             string `json:"label"`
	HasOwnConfig      bool   `json:"has_own_config"`
	LinkedToOwner     bool   `json:"linked_to_owner"`
	DetachedFromOwner bool   `json:"detached_from_owner"`
}

// EntityResponse is the GitHub state of a scope or a task.
type EntityResponse struct {
	Kind  string               `json:"kind"`
	ID    string               `json:"id"`
	Scope *ScopeConfigResponse `json:"scope,omitempty"`
	Task  *TaskStatusResponse  `json:"task,omitempty"`
}

// SyncLogResponse is one sync log row.
type SyncLogResponse struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func taskResponse(t *store.Task, tags []string) *TaskResponse {
	if t == nil {
		return nil
	}
	return &TaskResponse{
		ID:           t.ID,
		ScopeID:      t.ScopeID,
		ParentTaskID: t.ParentTaskID,
		Name:         t.Name,
		Description:  t.Description,
		Completed:    t.Completed,
		CompletedAt:  t.CompletedAt,
		Tags:         tags,
	}
}

func issueLinkResponse(c *store.TaskGitHubConfig) *IssueLinkResponse {
	if !c.HasIssueLink() {
		return &IssueLinkResponse{}
	}
	out := &IssueLinkResponse{
		Linked:          true,
		IssueNumber:     c.IssueNumber,
		IssueURL:        c.IssueURL,
		IssueState:      c.IssueState,
		ProjectID:       c.ProjectID,
		ProjectName:     c.ProjectName,
		MilestoneNumber: c.MilestoneNumber,
		MilestoneTitle:  c.MilestoneTitle,
		MilestoneDueOn:  c.MilestoneDueOn,
	}
	if c.RepoOwner != "" && c.RepoName != "" {
		out.Repository = c.RepoOwner + "/" + c.RepoName
	}
	return out
}

func resultResponse(res *syncer.Result) ResultResponse {
	return ResultResponse{
		Task:     taskResponse(res.Task, nil),
		GitHub:   issueLinkResponse(res.Config),
		Unlinked: res.Unlinked,
		Warnings: res.Warnings,
	}
}

func taskStatusResponse(st *syncer.TaskStatus) *TaskStatusResponse {
	return &TaskStatusResponse{
		Task:     taskResponse(st.Task, st.Tags),
		GitHub:   issueLinkResponse(st.Config),
		CanLink:  st.CanLink,
		OpenLink: st.OpenLink,
	}
}

func scopeConfigResponse(st *syncer.ScopeStatus) *ScopeConfigResponse {
	out := &ScopeConfigResponse{
		ScopeID:           st.Scope.ID,
		IsOwner:           st.IsOwner,
		Enabled:           st.State.Enabled(),
		Label:             st.Label,
		HasOwnConfig:      st.State.UserConfig != nil,
		LinkedToOwner:     st.State.LinkedToOwner,
		DetachedFromOwner: st.State.DetachedFromOwner,
	}
	if eff := st.State.EffectiveConfig; eff != nil {
		out.RepoID = eff.RepoID
		out.Repository = eff.RepoFullName()
		out.ProjectID = eff.ProjectID
		out.ProjectName = eff.ProjectName
		out.MilestoneNumber = eff.MilestoneNumber
		out.MilestoneTitle = eff.MilestoneTitle
	}
	return out
}
