package syncer

import (
	"context"
	"fmt"

	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/store"
)

// CreateIssueForTask creates a GitHub issue for an unlinked task using the
// scope's effective repository and milestone. Failing to add the issue to
// the configured project is reported as a warning.
func (e *Engine) CreateIssueForTask(ctx context.Context, taskID, userID string) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !tc.state.Enabled() {
		return nil, ErrNotConfigured
	}
	if tc.linked() {
		return nil, ErrAlreadyLinked
	}
	token, err := e.token(tc.user)
	if err != nil {
		return nil, err
	}

	eff := tc.state.EffectiveConfig
	issue, err := e.tracker.CreateIssue(ctx, token, eff.RepoOwner, eff.RepoName, github.IssueRequest{
		Title:     tc.task.Name,
		Body:      tc.task.Description,
		Labels:    tc.labels,
		Milestone: eff.MilestoneNumber,
	})
	if err != nil {
		return nil, e.remoteErr(ctx, userID, taskID, ActionCreateIssue, err)
	}

	res := &Result{}
	projectAdded := false
	if eff.ProjectID != "" {
		if err := e.tracker.AddIssueToProject(ctx, token, eff.ProjectID, issue.NodeID, issue.ID); err != nil {
			e.log.Warn("add issue to project", "task_id", taskID, "project_id", eff.ProjectID, "issue", issue.Number, "err", err)
			e.secondaryFailed(ctx, userID, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("Issue #%d was created but could not be added to project %q", issue.Number, projectLabel(eff)))
		} else {
			projectAdded = true
		}
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		cfg, err := integration.EnsureTaskConfig(ctx, tx, tc.task.ID, userID)
		if err != nil {
			return err
		}
		applyIssue(cfg, issue)
		if issue.Milestone == nil && eff.MilestoneNumber != nil {
			n := *eff.MilestoneNumber
			cfg.MilestoneNumber = &n
			cfg.MilestoneTitle = eff.MilestoneTitle
		}
		cfg.RepoID = eff.RepoID
		cfg.RepoOwner, cfg.RepoName = eff.RepoOwner, eff.RepoName
		if projectAdded {
			cfg.ProjectID, cfg.ProjectName = eff.ProjectID, eff.ProjectName
		} else {
			cfg.ProjectID, cfg.ProjectName = "", ""
		}
		if err := tx.SaveTaskConfig(ctx, cfg); err != nil {
			return err
		}
		if err := integration.SyncHiddenTag(ctx, tx, tc.task); err != nil {
			return err
		}
		if _, err := tx.AppendSyncLog(ctx, tc.task.ID, ActionCreateIssue, store.StatusSuccess,
			fmt.Sprintf("Created issue #%d in %s", issue.Number, eff.RepoFullName())); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		// The remote issue exists without a local link. No reconciliation
		// sweep exists; the issue URL is logged for manual cleanup.
		e.log.Error("persist created issue", "task_id", taskID, "issue_url", issue.URL, "err", err)
		return nil, fmt.Errorf("persist created issue: %w", err)
	}
	return res, nil
}

func projectLabel(cfg *store.ScopeGitHubConfig) string {
	if cfg.ProjectName != "" {
		return cfg.ProjectName
	}
	return cfg.ProjectID
}

// SyncFromRemote pulls the linked issue into the task: title and body,
// completion state, milestone and a full replacement of the task's tags
// with the issue labels. A deleted issue clears the link and succeeds with
// Result.Unlinked set.
func (e *Engine) SyncFromRemote(ctx context.Context, taskID, userID string) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !tc.linked() {
		return nil, ErrNotLinked
	}
	token, err := e.token(tc.user)
	if err != nil {
		return nil, err
	}

	owner, repo := tc.repo()
	issue, err := e.tracker.FetchIssue(ctx, token, owner, repo, *tc.cfg.IssueNumber)
	if github.IsMissing(err) {
		return e.unlinkResult(ctx, tc, userID, ActionSyncFromRemote)
	}
	if err != nil {
		return nil, e.remoteErr(ctx, userID, taskID, ActionSyncFromRemote, err)
	}

	res := &Result{}
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		if err := e.applyRemote(ctx, tx, tc, issue); err != nil {
			return err
		}
		if _, err := tx.AppendSyncLog(ctx, tc.task.ID, ActionSyncFromRemote, store.StatusSuccess,
			fmt.Sprintf("Pulled issue #%d (%s)", issue.Number, issue.State)); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyRemote overwrites local task state from issue.
func (e *Engine) applyRemote(ctx context.Context, tx *store.Tx, tc *taskContext, issue *github.Issue) error {
	if err := tx.UpdateTaskContent(ctx, tc.task.ID, issue.Title, issue.Body); err != nil {
		return err
	}
	closed := issue.State == "closed"
	switch {
	case closed && !tc.task.Completed:
		if err := tx.CompleteTask(ctx, tc.task.ID, e.now()); err != nil {
			return err
		}
	case !closed && tc.task.Completed:
		if err := tx.UncompleteTask(ctx, tc.task.ID); err != nil {
			return err
		}
	}

	applyIssue(tc.cfg, issue)
	if err := tx.SaveTaskConfig(ctx, tc.cfg); err != nil {
		return err
	}
	return integration.ReplaceTagsFromLabels(ctx, tx, tc.task, issue.Labels)
}

// unlinkResult clears the link after a missing-issue response and returns
// a successful Result.
func (e *Engine) unlinkResult(ctx context.Context, tc *taskContext, userID, action string) (*Result, error) {
	e.log.Info("linked issue is gone, clearing link", "task_id", tc.task.ID, "user_id", userID, "action", action)
	res := &Result{Unlinked: true}
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if err := unlink(ctx, tx, tc.task, tc.cfg, action); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PushLabelUpdate replaces the issue labels with the task's current tags.
func (e *Engine) PushLabelUpdate(ctx context.Context, taskID, userID string) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !tc.linked() {
		return nil, ErrNotLinked
	}
	token, err := e.token(tc.user)
	if err != nil {
		return nil, err
	}

	issue, missing, err := e.pushLabels(ctx, tc, token, userID, tc.labels)
	if err != nil {
		return nil, err
	}
	if missing {
		return e.unlinkResult(ctx, tc, userID, ActionPushLabels)
	}

	res := &Result{}
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		if err := recordPush(ctx, tx, tc, issue); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// pushLabels sends labels to the linked issue. missing reports a deleted
// issue; any other failure is classified by remoteErr.
func (e *Engine) pushLabels(ctx context.Context, tc *taskContext, token, userID string, labels []string) (*github.Issue, bool, error) {
	if labels == nil {
		labels = []string{}
	}
	owner, repo := tc.repo()
	issue, err := e.tracker.UpdateIssue(ctx, token, owner, repo, *tc.cfg.IssueNumber, github.IssueUpdate{Labels: labels})
	if github.IsMissing(err) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, e.remoteErr(ctx, userID, tc.task.ID, ActionPushLabels, err)
	}
	return issue, false, nil
}

func recordPush(ctx context.Context, tx *store.Tx, tc *taskContext, issue *github.Issue) error {
	tc.cfg.IssueState = issue.State
	if err := tx.SaveTaskConfig(ctx, tc.cfg); err != nil {
		return err
	}
	_, err := tx.AppendSyncLog(ctx, tc.task.ID, ActionPushLabels, store.StatusSuccess,
		fmt.Sprintf("Pushed %d label(s) to issue #%d", len(issue.Labels), issue.Number))
	return err
}

// UpdateMilestone moves the linked issue to milestone, or clears it when
// milestone is nil. Nothing is sent when the value is unchanged.
func (e *Engine) UpdateMilestone(ctx context.Context, taskID, userID string, milestone *int) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !tc.linked() {
		return nil, ErrNotLinked
	}
	if sameMilestone(tc.cfg.MilestoneNumber, milestone) {
		return &Result{Task: tc.task, Config: tc.cfg}, nil
	}
	token, err := e.token(tc.user)
	if err != nil {
		return nil, err
	}

	owner, repo := tc.repo()
	issue, err := e.tracker.UpdateIssue(ctx, token, owner, repo, *tc.cfg.IssueNumber,
		github.IssueUpdate{Milestone: github.MilestoneTo(milestone)})
	if github.IsMissing(err) {
		return e.unlinkResult(ctx, tc, userID, ActionUpdateMilestone)
	}
	if err != nil {
		return nil, e.remoteErr(ctx, userID, taskID, ActionUpdateMilestone, err)
	}

	res := &Result{}
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		applyMilestone(tc.cfg, issue.Milestone)
		if err := tx.SaveTaskConfig(ctx, tc.cfg); err != nil {
			return err
		}
		msg := fmt.Sprintf("Cleared milestone on issue #%d", issue.Number)
		if issue.Milestone != nil {
			msg = fmt.Sprintf("Moved issue #%d to milestone %q", issue.Number, issue.Milestone.Title)
		}
		if _, err := tx.AppendSyncLog(ctx, tc.task.ID, ActionUpdateMilestone, store.StatusSuccess, msg); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func sameMilestone(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
