package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/store"
)

// TaskStatus is a task as seen by one user, with its mirror state.
type TaskStatus struct {
	Task     *store.Task
	Tags     []string
	Config   *store.TaskGitHubConfig
	Scope    integration.State
	CanLink  bool
	Linked   bool
	OpenLink bool
}

// DescribeTask resolves the task, its tags and the user's effective
// configs without touching GitHub.
func (e *Engine) DescribeTask(ctx context.Context, taskID, userID string) (*TaskStatus, error) {
	var st *TaskStatus
	err := e.store.View(ctx, func(tx *store.Tx) error {
		tc, err := e.loadTask(ctx, tx, taskID, userID)
		if err != nil {
			return err
		}
		tags, err := tx.TaskTags(ctx, taskID)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			names = append(names, t.Name)
		}
		st = &TaskStatus{
			Task:     tc.task,
			Tags:     names,
			Config:   tc.cfg,
			Scope:    tc.state,
			CanLink:  tc.state.Enabled() && !tc.linked(),
			Linked:   tc.linked(),
			OpenLink: integration.IssueIsOpen(tc.cfg),
		}
		return nil
	})
	return st, err
}

// ScopeStatus is a scope's resolved configuration for one user.
type ScopeStatus struct {
	Scope   *store.Scope
	State   integration.State
	Label   string
	IsOwner bool
}

func (e *Engine) loadScope(ctx context.Context, tx *store.Tx, scopeID, userID string) (*store.Scope, *store.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	scope, err := tx.GetScope(ctx, scopeID)
	if err != nil {
		return nil, nil, err
	}
	if scope == nil {
		return nil, nil, fmt.Errorf("scope %s: %w", scopeID, ErrNotFound)
	}
	ok, err := tx.HasAccess(ctx, scopeID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("scope %s: %w", scopeID, ErrNotFound)
	}
	return scope, user, nil
}

func scopeStatus(ctx context.Context, tx *store.Tx, scope *store.Scope, userID string) (*ScopeStatus, error) {
	state, err := integration.ScopeState(ctx, tx, scope, userID)
	if err != nil {
		return nil, err
	}
	return &ScopeStatus{
		Scope:   scope,
		State:   state,
		Label:   integration.EffectiveLabel(state, scope),
		IsOwner: scope.IsOwner(userID),
	}, nil
}

// DescribeScope resolves the scope configuration userID sees.
func (e *Engine) DescribeScope(ctx context.Context, scopeID, userID string) (*ScopeStatus, error) {
	var st *ScopeStatus
	err := e.store.View(ctx, func(tx *store.Tx) error {
		scope, _, err := e.loadScope(ctx, tx, scopeID, userID)
		if err != nil {
			return err
		}
		st, err = scopeStatus(ctx, tx, scope, userID)
		return err
	})
	return st, err
}

// ConfigureScope stores the user's settings for a scope, propagating or
// detaching collaborator configs when the owner changes theirs.
func (e *Engine) ConfigureScope(ctx context.Context, scopeID, userID string, s integration.Settings) (*ScopeStatus, error) {
	var st *ScopeStatus
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		scope, user, err := e.loadScope(ctx, tx, scopeID, userID)
		if err != nil {
			return err
		}
		if _, err := integration.ConfigureScope(ctx, tx, scope, user, s); err != nil {
			return err
		}
		st, err = scopeStatus(ctx, tx, scope, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("scope github config saved", "scope_id", scopeID, "user_id", userID,
		"enabled", s.Enabled, "repo", st.State.EffectiveConfig.RepoFullName())
	return st, nil
}

// IsValidationError reports whether err rejects the caller's input.
func IsValidationError(err error) bool {
	return errors.Is(err, integration.ErrTokenRequired) ||
		errors.Is(err, integration.ErrRepositoryRequired) ||
		errors.Is(err, integration.ErrInvalidLabel) ||
		errors.Is(err, ErrReservedTag) ||
		errors.Is(err, ErrInvalidTag) ||
		errors.Is(err, ErrInvalidToken)
}

// EntityStatus describes the mirror state of a scope or a task, selected
// by kind ("scope" or "task").
type EntityStatus struct {
	Kind  string       `json:"kind"`
	ID    string       `json:"id"`
	Scope *ScopeStatus `json:"-"`
	Task  *TaskStatus  `json:"-"`
}

// DescribeEntity dispatches on the entity kind.
func (e *Engine) DescribeEntity(ctx context.Context, kind, id, userID string) (*EntityStatus, error) {
	k, err := store.ParseEntityKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotFound)
	}
	var ent store.Entity
	err = e.store.View(ctx, func(tx *store.Tx) error {
		ent, err = tx.LoadEntity(ctx, k, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, fmt.Errorf("%s %s: %w", k, id, ErrNotFound)
	}

	out := &EntityStatus{Kind: ent.Kind().String(), ID: ent.EntityID()}
	switch ent.Kind() {
	case store.KindScope:
		out.Scope, err = e.DescribeScope(ctx, ent.EntityID(), userID)
	case store.KindTask:
		out.Task, err = e.DescribeTask(ctx, ent.EntityID(), userID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SyncLog returns the newest limit entries of a task's sync log.
func (e *Engine) SyncLog(ctx context.Context, taskID, userID string, limit int) ([]store.SyncLogEntry, error) {
	var entries []store.SyncLogEntry
	err := e.store.View(ctx, func(tx *store.Tx) error {
		if _, err := e.loadTask(ctx, tx, taskID, userID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListSyncLog(ctx, taskID, limit)
		return err
	})
	return entries, err
}
