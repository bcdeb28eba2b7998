package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/marcus/scopes/internal/store"
)

// EnsureTaskConfig returns the (task, user) config, creating it on first use.
func EnsureTaskConfig(ctx context.Context, tx *store.Tx, taskID, userID string) (*store.TaskGitHubConfig, error) {
	cfg, err := tx.GetTaskConfig(ctx, taskID, userID)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return tx.CreateTaskConfig(ctx, taskID, userID)
}

// EffectiveTaskConfig returns the user's own config for task, else the
// task owner's, else nil.
func EffectiveTaskConfig(ctx context.Context, tx *store.Tx, task *store.Task, userID string) (*store.TaskGitHubConfig, error) {
	cfg, err := tx.GetTaskConfig(ctx, task.ID, userID)
	if err != nil || cfg != nil {
		return cfg, err
	}
	if task.OwnerID == userID {
		return nil, nil
	}
	return tx.GetTaskConfig(ctx, task.ID, task.OwnerID)
}

// IssueIsOpen reports whether cfg links an issue that is not closed.
func IssueIsOpen(cfg *store.TaskGitHubConfig) bool {
	return cfg.HasIssueLink() && (cfg.IssueState == "" || cfg.IssueState == "open")
}

// ClearIssueLink nulls the issue, repository, project and milestone fields
// of cfg in place and drops the hidden tag once no config of the task is
// linked.
func ClearIssueLink(ctx context.Context, tx *store.Tx, task *store.Task, cfg *store.TaskGitHubConfig) error {
	cfg.IssueID = nil
	cfg.IssueNodeID = ""
	cfg.IssueNumber = nil
	cfg.IssueURL = ""
	cfg.IssueState = ""
	cfg.RepoID = nil
	cfg.RepoOwner, cfg.RepoName = "", ""
	cfg.ProjectID, cfg.ProjectName = "", ""
	cfg.MilestoneNumber = nil
	cfg.MilestoneTitle = ""
	cfg.MilestoneDueOn = nil
	if err := tx.SaveTaskConfig(ctx, cfg); err != nil {
		return fmt.Errorf("clear issue link: %w", err)
	}
	return SyncHiddenTag(ctx, tx, task)
}

// SyncHiddenTag attaches the hidden tag when some config of task links an
// issue and detaches it otherwise.
func SyncHiddenTag(ctx context.Context, tx *store.Tx, task *store.Task) error {
	configs, err := tx.ListTaskConfigs(ctx, task.ID)
	if err != nil {
		return err
	}
	linked := false
	for _, c := range configs {
		if c.HasIssueLink() {
			linked = true
			break
		}
	}

	if linked {
		tag, err := tx.GetOrCreateTag(ctx, task.ScopeID, HiddenTag)
		if err != nil {
			return err
		}
		return tx.AttachTag(ctx, task.ID, tag.ID)
	}
	tag, err := tx.GetTag(ctx, task.ScopeID, HiddenTag)
	if err != nil || tag == nil {
		return err
	}
	return tx.DetachTag(ctx, task.ID, tag.ID)
}

// TaskLabels returns the task's tag names minus reserved names, sorted.
func TaskLabels(ctx context.Context, tx *store.Tx, taskID string) ([]string, error) {
	tags, err := tx.TaskTags(ctx, taskID)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(tags))
	for _, t := range tags {
		if !IsReservedTag(t.Name) {
			labels = append(labels, t.Name)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// ReplaceTagsFromLabels replaces the task's tags with tags named after the
// remote labels, minus reserved names, creating missing tags in the task's
// scope. Local-only tags are discarded.
func ReplaceTagsFromLabels(ctx context.Context, tx *store.Tx, task *store.Task, labels []string) error {
	seen := make(map[string]bool, len(labels))
	var ids []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || IsReservedTag(l) || seen[l] {
			continue
		}
		seen[l] = true
		tag, err := tx.GetOrCreateTag(ctx, task.ScopeID, l)
		if err != nil {
			return err
		}
		ids = append(ids, tag.ID)
	}
	if err := tx.ReplaceTaskTags(ctx, task.ID, ids); err != nil {
		return err
	}
	return SyncHiddenTag(ctx, tx, task)
}
