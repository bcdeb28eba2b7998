// Package syncer mirrors tasks as GitHub issues. Every operation takes the
// acting user explicitly, performs its remote calls first and then commits
// all local writes together with a sync log row in one transaction.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/scopes/internal/crypto"
	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/store"
)

// Errors surfaced to callers. Remote failures wrap one of the first two.
var (
	ErrAuthFailed    = errors.New("GitHub authentication failed")
	ErrCommunication = errors.New("unable to communicate with GitHub")
	ErrNotConfigured = errors.New("GitHub integration is not configured")
	ErrOpenIssue     = errors.New("task has an open GitHub issue; close it before deleting")
	ErrNotLinked     = errors.New("task is not linked to a GitHub issue")
	ErrAlreadyLinked = errors.New("task is already linked to a GitHub issue")
	ErrReservedTag   = errors.New("tag name is reserved")
	ErrInvalidTag    = errors.New("tag name must be 1-50 letters, digits, - or _")
	ErrNotFound      = errors.New("not found")
)

// Sync log actions.
const (
	ActionCreateIssue     = "create_issue"
	ActionSyncFromRemote  = "sync_from_remote"
	ActionPushLabels      = "push_labels"
	ActionCloseIssue      = "close_issue"
	ActionReopenIssue     = "reopen_issue"
	ActionUpdateMilestone = "update_milestone"
	ActionRemoveAppLabel  = "remove_app_label"
)

// CloseComment is posted on an issue closed by completing its task.
const CloseComment = "Task completed in ProjectsManager."

// Tracker is the remote issue tracker. *github.Client satisfies it.
type Tracker interface {
	TestConnection(ctx context.Context, token string) (bool, error)
	ListRepositories(ctx context.Context, token string) ([]github.Repository, error)
	ListProjects(ctx context.Context, token, owner, repo string) ([]github.Project, error)
	ListProjectsV2(ctx context.Context, token, owner, repo string) ([]github.Project, error)
	ListMilestones(ctx context.Context, token, owner, repo string) ([]github.Milestone, error)
	CreateIssue(ctx context.Context, token, owner, repo string, req github.IssueRequest) (*github.Issue, error)
	FetchIssue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error)
	UpdateIssue(ctx context.Context, token, owner, repo string, number int, upd github.IssueUpdate) (*github.Issue, error)
	CloseIssue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error)
	ReopenIssue(ctx context.Context, token, owner, repo string, number int) (*github.Issue, error)
	CommentOnIssue(ctx context.Context, token, owner, repo string, number int, body string) error
	RemoveLabelFromIssue(ctx context.Context, token, owner, repo string, number int, label string) ([]string, error)
	AddIssueToProject(ctx context.Context, token, projectID, issueNodeID string, issueID int64) error
}

// Engine is the synchronization orchestrator.
type Engine struct {
	store   *store.Store
	tracker Tracker
	vault   *crypto.Vault
	log     *slog.Logger
	now     func() time.Time
}

// New creates an Engine. A nil logger uses slog.Default().
func New(st *store.Store, tracker Tracker, vault *crypto.Vault, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:   st,
		tracker: tracker,
		vault:   vault,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of a task operation. Unlinked is set when the
// remote issue turned out to be gone and the local link was cleared.
type Result struct {
	Task     *store.Task
	Config   *store.TaskGitHubConfig
	Unlinked bool
	Warnings []string
}

// taskContext is everything an operation reads before calling GitHub.
type taskContext struct {
	user   *store.User
	task   *store.Task
	scope  *store.Scope
	state  integration.State
	cfg    *store.TaskGitHubConfig
	labels []string
}

// repo returns the repository of the linked issue, falling back to the
// scope's effective repository.
func (tc *taskContext) repo() (string, string) {
	if tc.cfg != nil && tc.cfg.RepoOwner != "" && tc.cfg.RepoName != "" {
		return tc.cfg.RepoOwner, tc.cfg.RepoName
	}
	if eff := tc.state.EffectiveConfig; eff.HasRepository() {
		return eff.RepoOwner, eff.RepoName
	}
	return "", ""
}

func (tc *taskContext) linked() bool { return tc.cfg.HasIssueLink() }

func (e *Engine) loadTask(ctx context.Context, tx *store.Tx, taskID, userID string) (*taskContext, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	ok, err := tx.HasAccess(ctx, task.ScopeID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	scope, err := tx.GetScope(ctx, task.ScopeID)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		return nil, fmt.Errorf("scope %s: %w", task.ScopeID, ErrNotFound)
	}
	state, err := integration.ScopeState(ctx, tx, scope, userID)
	if err != nil {
		return nil, err
	}
	cfg, err := integration.EffectiveTaskConfig(ctx, tx, task, userID)
	if err != nil {
		return nil, err
	}
	labels, err := integration.TaskLabels(ctx, tx, task.ID)
	if err != nil {
		return nil, err
	}
	return &taskContext{user: user, task: task, scope: scope, state: state, cfg: cfg, labels: labels}, nil
}

// load reads a taskContext in its own read transaction.
func (e *Engine) load(ctx context.Context, taskID, userID string) (*taskContext, error) {
	var tc *taskContext
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		tc, err = e.loadTask(ctx, tx, taskID, userID)
		return err
	})
	return tc, err
}

// token decrypts the user's stored token. A disabled integration, a
// missing token or one sealed under a rotated secret all mean the user has
// to configure credentials again.
func (e *Engine) token(user *store.User) (string, error) {
	if !user.GitHubEnabled || !user.HasGitHubToken() {
		return "", ErrNotConfigured
	}
	token := e.vault.DecryptToken(user.GitHubTokenEncrypted)
	if token == "" {
		return "", ErrNotConfigured
	}
	return token, nil
}

// remoteErr classifies a failed GitHub call that is not a missing issue.
// Unauthorized disables the user's integration; every failure gets a
// failure row in the sync log when taskID is set.
func (e *Engine) remoteErr(ctx context.Context, userID, taskID, action string, err error) error {
	if github.IsUnauthorized(err) {
		e.log.Warn("github rejected credentials", "user_id", userID, "task_id", taskID, "action", action, "err", err)
		if ierr := e.invalidate(ctx, userID, taskID, action); ierr != nil {
			e.log.Error("invalidate credentials", "user_id", userID, "err", ierr)
		}
		return fmt.Errorf("%s: %w", action, ErrAuthFailed)
	}

	e.log.Error("github call failed", "user_id", userID, "task_id", taskID, "action", action, "err", err)
	if taskID != "" {
		lerr := e.store.Update(ctx, func(tx *store.Tx) error {
			_, err := tx.AppendSyncLog(ctx, taskID, action, store.StatusFailure, ErrCommunication.Error())
			return err
		})
		if lerr != nil {
			e.log.Error("append sync log", "task_id", taskID, "err", lerr)
		}
	}
	return fmt.Errorf("%s: %w", action, ErrCommunication)
}

func (e *Engine) invalidate(ctx context.Context, userID, taskID, action string) error {
	return e.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.SetGitHubCredentials(ctx, userID, false, nil); err != nil {
			return err
		}
		if taskID == "" {
			return nil
		}
		_, err := tx.AppendSyncLog(ctx, taskID, action, store.StatusFailure, ErrAuthFailed.Error())
		return err
	})
}

// InvalidateCredentials disables the user's integration and erases the
// stored token.
func (e *Engine) InvalidateCredentials(ctx context.Context, userID string) error {
	return e.invalidate(ctx, userID, "", "")
}

// secondaryFailed handles a failed follow-up call whose failure only
// warrants a warning. Rejected credentials are still invalidated.
func (e *Engine) secondaryFailed(ctx context.Context, userID string, err error) {
	if !github.IsUnauthorized(err) {
		return
	}
	if ierr := e.InvalidateCredentials(ctx, userID); ierr != nil {
		e.log.Error("invalidate credentials", "user_id", userID, "err", ierr)
	}
}

// applyIssue copies the identity, state and milestone of issue onto cfg.
func applyIssue(cfg *store.TaskGitHubConfig, issue *github.Issue) {
	id := issue.ID
	num := issue.Number
	cfg.IssueID = &id
	cfg.IssueNumber = &num
	if issue.NodeID != "" {
		cfg.IssueNodeID = issue.NodeID
	}
	if issue.URL != "" {
		cfg.IssueURL = issue.URL
	}
	cfg.IssueState = issue.State
	applyMilestone(cfg, issue.Milestone)
}

func applyMilestone(cfg *store.TaskGitHubConfig, m *github.Milestone) {
	if m == nil {
		cfg.MilestoneNumber = nil
		cfg.MilestoneTitle = ""
		cfg.MilestoneDueOn = nil
		return
	}
	n := m.Number
	cfg.MilestoneNumber = &n
	cfg.MilestoneTitle = m.Title
	cfg.MilestoneDueOn = m.DueOn
}

// finish reloads the task and the user's effective config for a Result.
func (e *Engine) finish(ctx context.Context, tx *store.Tx, res *Result, taskID, userID string) error {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	res.Task = task
	if task == nil {
		return nil
	}
	res.Config, err = integration.EffectiveTaskConfig(ctx, tx, task, userID)
	return err
}

// unlink clears cfg's link and records a missing row for action.
func unlink(ctx context.Context, tx *store.Tx, task *store.Task, cfg *store.TaskGitHubConfig, action string) error {
	number := 0
	if cfg.IssueNumber != nil {
		number = *cfg.IssueNumber
	}
	if err := integration.ClearIssueLink(ctx, tx, task, cfg); err != nil {
		return err
	}
	_, err := tx.AppendSyncLog(ctx, task.ID, action, store.StatusMissing,
		fmt.Sprintf("Issue #%d no longer exists on GitHub; link cleared", number))
	return err
}
