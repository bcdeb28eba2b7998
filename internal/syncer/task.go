package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/store"
)

// ToggleCompletion flips a task's completion. A linked issue is closed
// (with a comment) or reopened first; if that fails for any reason other
// than the issue being gone the task is left unchanged.
func (e *Engine) ToggleCompletion(ctx context.Context, taskID, userID string) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	complete := !tc.task.Completed
	action := ActionReopenIssue
	if complete {
		action = ActionCloseIssue
	}

	res := &Result{}
	var issue *github.Issue
	if tc.linked() {
		token, err := e.token(tc.user)
		if err != nil {
			return nil, err
		}
		owner, repo := tc.repo()
		number := *tc.cfg.IssueNumber
		if complete {
			issue, err = e.tracker.CloseIssue(ctx, token, owner, repo, number)
		} else {
			issue, err = e.tracker.ReopenIssue(ctx, token, owner, repo, number)
		}
		switch {
		case github.IsMissing(err):
			res.Unlinked = true
		case err != nil:
			return nil, e.remoteErr(ctx, userID, taskID, action, err)
		case complete:
			if cerr := e.tracker.CommentOnIssue(ctx, token, owner, repo, number, CloseComment); cerr != nil {
				e.log.Warn("comment on closed issue", "task_id", taskID, "issue", number, "err", cerr)
				e.secondaryFailed(ctx, userID, cerr)
				res.Warnings = append(res.Warnings, fmt.Sprintf("Issue #%d was closed but the completion comment could not be posted", number))
			}
		}
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		switch {
		case res.Unlinked:
			if err := unlink(ctx, tx, tc.task, tc.cfg, action); err != nil {
				return err
			}
		case issue != nil:
			tc.cfg.IssueState = issue.State
			if err := tx.SaveTaskConfig(ctx, tc.cfg); err != nil {
				return err
			}
			verb := "Reopened"
			if complete {
				verb = "Closed"
			}
			if _, err := tx.AppendSyncLog(ctx, tc.task.ID, action, store.StatusSuccess,
				fmt.Sprintf("%s issue #%d", verb, issue.Number)); err != nil {
				return err
			}
		}

		if complete {
			if err := tx.CompleteTask(ctx, tc.task.ID, e.now()); err != nil {
				return err
			}
		} else if err := tx.UncompleteTask(ctx, tc.task.ID); err != nil {
			return err
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteTask deletes a task and its subtasks unless one of their linked
// issues is still open. For each closed linked issue in the subtree the
// application label is removed on a best effort basis; that failure never
// blocks the deletion.
func (e *Engine) DeleteTask(ctx context.Context, taskID, userID string) (*Result, error) {
	var subtree []*taskContext
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var walk func(id string) error
		walk = func(id string) error {
			tc, err := e.loadTask(ctx, tx, id, userID)
			if err != nil {
				return err
			}
			configs, err := tx.ListTaskConfigs(ctx, id)
			if err != nil {
				return err
			}
			for _, c := range configs {
				if integration.IssueIsOpen(c) {
					if id == taskID {
						return ErrOpenIssue
					}
					return fmt.Errorf("subtask %s: %w", id, ErrOpenIssue)
				}
			}
			subtree = append(subtree, tc)

			children, err := tx.ListSubtasks(ctx, id)
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := walk(child.ID); err != nil {
					return err
				}
			}
			return nil
		}
		return walk(taskID)
	})
	if err != nil {
		return nil, err
	}

	type labelResult struct{ taskID, status, message string }
	var removed []labelResult
	res := &Result{}
	for _, tc := range subtree {
		if !tc.linked() {
			continue
		}
		status, message := e.removeAppLabel(ctx, tc, userID)
		if status == store.StatusFailure {
			res.Warnings = append(res.Warnings, message)
		}
		removed = append(removed, labelResult{tc.task.ID, status, message})
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		for _, r := range removed {
			if _, err := tx.AppendSyncLog(ctx, r.taskID, ActionRemoveAppLabel, r.status, r.message); err != nil {
				return err
			}
		}
		return tx.DeleteTask(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}
	res.Task = subtree[0].task
	return res, nil
}

func (e *Engine) removeAppLabel(ctx context.Context, tc *taskContext, userID string) (string, string) {
	number := *tc.cfg.IssueNumber
	token, err := e.token(tc.user)
	if err != nil {
		return store.StatusFailure, fmt.Sprintf("Could not remove %s label from issue #%d: %v", github.AppLabel, number, err)
	}
	owner, repo := tc.repo()
	_, err = e.tracker.RemoveLabelFromIssue(ctx, token, owner, repo, number, github.AppLabel)
	switch {
	case err == nil:
		return store.StatusSuccess, fmt.Sprintf("Removed %s label from issue #%d", github.AppLabel, number)
	case github.IsMissing(err):
		return store.StatusMissing, fmt.Sprintf("Issue #%d or its %s label no longer exists", number, github.AppLabel)
	}
	e.secondaryFailed(ctx, userID, err)
	e.log.Warn("remove app label", "task_id", tc.task.ID, "issue", number, "err", err)
	return store.StatusFailure, fmt.Sprintf("Could not remove %s label from issue #%d", github.AppLabel, number)
}

func tagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidTag
	}
	if integration.IsReservedTag(name) {
		return "", fmt.Errorf("%q: %w", name, ErrReservedTag)
	}
	return name, nil
}

// AddTag attaches a tag to a task and pushes the new label set when the
// task is linked.
func (e *Engine) AddTag(ctx context.Context, taskID, userID, name string) (*Result, error) {
	name, err := tagName(name)
	if err != nil {
		return nil, err
	}
	if !integration.ValidLabelName(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidTag)
	}
	return e.editTags(ctx, taskID, userID, name, true)
}

// RemoveTag detaches a tag from a task and pushes the new label set when
// the task is linked. Names pulled from GitHub labels need not match the
// pattern AddTag enforces.
func (e *Engine) RemoveTag(ctx context.Context, taskID, userID, name string) (*Result, error) {
	name, err := tagName(name)
	if err != nil {
		return nil, err
	}
	return e.editTags(ctx, taskID, userID, name, false)
}

func (e *Engine) editTags(ctx context.Context, taskID, userID, name string, add bool) (*Result, error) {
	tc, err := e.load(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(tc.labels)+1)
	for _, l := range tc.labels {
		if l != name {
			labels = append(labels, l)
		}
	}
	if add {
		labels = append(labels, name)
	}

	res := &Result{}
	var issue *github.Issue
	if tc.linked() {
		token, err := e.token(tc.user)
		if err != nil {
			return nil, err
		}
		var missing bool
		issue, missing, err = e.pushLabels(ctx, tc, token, userID, labels)
		if err != nil {
			return nil, err
		}
		res.Unlinked = missing
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		if add {
			tag, err := tx.GetOrCreateTag(ctx, tc.task.ScopeID, name)
			if err != nil {
				return err
			}
			if err := tx.AttachTag(ctx, tc.task.ID, tag.ID); err != nil {
				return err
			}
		} else {
			tag, err := tx.GetTag(ctx, tc.task.ScopeID, name)
			if err != nil {
				return err
			}
			if tag != nil {
				if err := tx.DetachTag(ctx, tc.task.ID, tag.ID); err != nil {
					return err
				}
			}
		}

		switch {
		case res.Unlinked:
			if err := unlink(ctx, tx, tc.task, tc.cfg, ActionPushLabels); err != nil {
				return err
			}
		case issue != nil:
			if err := recordPush(ctx, tx, tc, issue); err != nil {
				return err
			}
		}
		return e.finish(ctx, tx, res, tc.task.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// IsRemoteError reports whether err came from GitHub rather than from
// local validation or storage.
func IsRemoteError(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrCommunication)
}
