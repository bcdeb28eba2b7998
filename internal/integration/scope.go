// Package integration resolves per-user GitHub settings for scopes and
// tasks. Owners configure a scope; collaborators either mirror the owner's
// repository (shared), keep a frozen snapshot (detached), or configure
// their own repository (independent).
package integration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/marcus/scopes/internal/store"
)

// Validation errors returned by ConfigureScope.
var (
	ErrTokenRequired      = errors.New("a GitHub token must be configured before enabling integration")
	ErrRepositoryRequired = errors.New("a repository must be selected to enable GitHub integration")
	ErrInvalidLabel       = errors.New("label may only contain letters, digits, '-' and '_' (max 50)")
)

// State is the resolved view of a scope's configuration for one user.
type State struct {
	UserConfig        *store.ScopeGitHubConfig
	OwnerConfig       *store.ScopeGitHubConfig
	EffectiveConfig   *store.ScopeGitHubConfig
	LinkedToOwner     bool
	DetachedFromOwner bool
}

// Enabled reports whether the effective config has integration turned on
// with a repository selected.
func (s State) Enabled() bool {
	return s.EffectiveConfig != nil && s.EffectiveConfig.Enabled && s.EffectiveConfig.HasRepository()
}

// ComputeState resolves the configuration userID sees on scope, given all
// config rows of the scope.
func ComputeState(scope *store.Scope, userID string, configs []*store.ScopeGitHubConfig) State {
	var st State
	for _, c := range configs {
		if c.UserID == scope.OwnerID {
			st.OwnerConfig = c
		}
		if c.UserID == userID {
			st.UserConfig = c
		}
	}

	if scope.IsOwner(userID) {
		st.UserConfig = st.OwnerConfig
		st.EffectiveConfig = st.OwnerConfig
		return st
	}

	if st.UserConfig != nil && st.OwnerConfig != nil {
		st.LinkedToOwner = IsLinkedTo(st.UserConfig, st.OwnerConfig)
		st.DetachedFromOwner = st.UserConfig.IsDetached && st.UserConfig.SourceUserID == scope.OwnerID
	}

	switch {
	case st.LinkedToOwner:
		st.EffectiveConfig = st.OwnerConfig
	case st.UserConfig != nil:
		st.EffectiveConfig = st.UserConfig
	default:
		st.EffectiveConfig = st.OwnerConfig
	}
	return st
}

// ScopeState loads the scope's configs and resolves them for userID.
func ScopeState(ctx context.Context, tx *store.Tx, scope *store.Scope, userID string) (State, error) {
	configs, err := tx.ListScopeConfigs(ctx, scope.ID)
	if err != nil {
		return State{}, err
	}
	return ComputeState(scope, userID, configs), nil
}

// SharesRepository reports whether a and b point at the same repository.
// Both need owner and name; numeric ids win when both are set, otherwise
// owner and name are compared case-insensitively.
func SharesRepository(a, b *store.ScopeGitHubConfig) bool {
	if !a.HasRepository() || !b.HasRepository() {
		return false
	}
	if a.RepoID != nil && b.RepoID != nil && *a.RepoID != 0 && *b.RepoID != 0 {
		return *a.RepoID == *b.RepoID
	}
	return strings.EqualFold(a.RepoOwner, b.RepoOwner) && strings.EqualFold(a.RepoName, b.RepoName)
}

// IsLinkedTo reports whether cfg currently mirrors owner.
func IsLinkedTo(cfg, owner *store.ScopeGitHubConfig) bool {
	return cfg != nil && cfg.IsSharedRepo && !cfg.IsDetached && SharesRepository(cfg, owner)
}

func cloneSettings(dst, src *store.ScopeGitHubConfig) {
	if src.RepoID != nil {
		id := *src.RepoID
		dst.RepoID = &id
	} else {
		dst.RepoID = nil
	}
	dst.RepoOwner = src.RepoOwner
	dst.RepoName = src.RepoName
	dst.ProjectID = src.ProjectID
	dst.ProjectName = src.ProjectName
	if src.MilestoneNumber != nil {
		n := *src.MilestoneNumber
		dst.MilestoneNumber = &n
	} else {
		dst.MilestoneNumber = nil
	}
	dst.MilestoneTitle = src.MilestoneTitle
	dst.LabelName = src.LabelName
	dst.Enabled = src.Enabled
}

func markSharedWith(cfg, owner *store.ScopeGitHubConfig) {
	cloneSettings(cfg, owner)
	cfg.IsSharedRepo = true
	cfg.IsDetached = false
	cfg.SourceUserID = owner.UserID
}

func markDetachedFrom(cfg, owner *store.ScopeGitHubConfig) {
	cloneSettings(cfg, owner)
	cfg.IsSharedRepo = false
	cfg.IsDetached = true
	cfg.SourceUserID = owner.UserID
}

func clearSharedFlags(cfg *store.ScopeGitHubConfig) {
	cfg.IsSharedRepo = false
	cfg.SourceUserID = ""
}

// PropagateOwnerConfiguration copies the owner's settings onto every other
// config that points at the owner's repository and links it. Configs that
// were shared but now point elsewhere lose their shared flags and keep
// their own values. It returns the configs it changed.
func PropagateOwnerConfiguration(owner *store.ScopeGitHubConfig, configs []*store.ScopeGitHubConfig) []*store.ScopeGitHubConfig {
	var changed []*store.ScopeGitHubConfig
	for _, c := range configs {
		if c.UserID == owner.UserID {
			continue
		}
		switch {
		case SharesRepository(c, owner):
			markSharedWith(c, owner)
			changed = append(changed, c)
		case c.IsSharedRepo:
			clearSharedFlags(c)
			changed = append(changed, c)
		}
	}
	return changed
}

// DetachSharedConfigs freezes a snapshot of owner into every config linked
// to it. Used when the owner disables integration so collaborators keep
// working against the same repository on their own.
func DetachSharedConfigs(owner *store.ScopeGitHubConfig, configs []*store.ScopeGitHubConfig) []*store.ScopeGitHubConfig {
	var changed []*store.ScopeGitHubConfig
	for _, c := range configs {
		if c.UserID == owner.UserID || !IsLinkedTo(c, owner) {
			continue
		}
		markDetachedFrom(c, owner)
		changed = append(changed, c)
	}
	return changed
}

func saveConfigs(ctx context.Context, tx *store.Tx, configs []*store.ScopeGitHubConfig) error {
	for _, c := range configs {
		if err := tx.SaveScopeConfig(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateScopeConfig returns the (scope, user) config, creating an
// empty one on first use.
func GetOrCreateScopeConfig(ctx context.Context, tx *store.Tx, scopeID, userID string) (*store.ScopeGitHubConfig, error) {
	cfg, err := tx.GetScopeConfig(ctx, scopeID, userID)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return tx.CreateScopeConfig(ctx, scopeID, userID)
}

// Settings is a user's requested scope configuration.
type Settings struct {
	Enabled         bool
	RepoID          *int64
	RepoOwner       string
	RepoName        string
	ProjectID       string
	ProjectName     string
	MilestoneNumber *int
	MilestoneTitle  string
	LabelName       string
}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// Validate checks s for a user that does or does not hold a token.
func (s Settings) Validate(hasToken bool) error {
	if s.LabelName != "" && !labelPattern.MatchString(s.LabelName) {
		return ErrInvalidLabel
	}
	if !s.Enabled {
		return nil
	}
	if !hasToken {
		return ErrTokenRequired
	}
	if strings.TrimSpace(s.RepoOwner) == "" || strings.TrimSpace(s.RepoName) == "" {
		return ErrRepositoryRequired
	}
	return nil
}

func (s Settings) applyTo(cfg *store.ScopeGitHubConfig) {
	cfg.Enabled = s.Enabled
	cfg.LabelName = s.LabelName
	if !s.Enabled {
		cfg.RepoID = nil
		cfg.RepoOwner, cfg.RepoName = "", ""
		cfg.ProjectID, cfg.ProjectName = "", ""
		cfg.MilestoneNumber, cfg.MilestoneTitle = nil, ""
		return
	}
	cfg.RepoID = s.RepoID
	cfg.RepoOwner = strings.TrimSpace(s.RepoOwner)
	cfg.RepoName = strings.TrimSpace(s.RepoName)
	cfg.ProjectID, cfg.ProjectName = s.ProjectID, s.ProjectName
	cfg.MilestoneNumber, cfg.MilestoneTitle = s.MilestoneNumber, s.MilestoneTitle
	if cfg.MilestoneNumber == nil {
		cfg.MilestoneTitle = ""
	}
}

// ConfigureScope stores user's settings for scope. When the owner disables
// integration while collaborators are linked they are detached with the
// owner's previous settings; otherwise the owner's new settings propagate.
// A collaborator pointing at the owner's repository becomes shared, any
// other repository makes it independent.
func ConfigureScope(ctx context.Context, tx *store.Tx, scope *store.Scope, user *store.User, s Settings) (State, error) {
	if err := s.Validate(user.HasGitHubToken()); err != nil {
		return State{}, err
	}

	cfg, err := GetOrCreateScopeConfig(ctx, tx, scope.ID, user.ID)
	if err != nil {
		return State{}, err
	}
	configs, err := tx.ListScopeConfigs(ctx, scope.ID)
	if err != nil {
		return State{}, err
	}

	if scope.IsOwner(user.ID) {
		previous := *cfg
		linked := false
		for _, c := range configs {
			if c.UserID != user.ID && IsLinkedTo(c, &previous) {
				linked = true
			}
		}

		s.applyTo(cfg)
		cfg.IsSharedRepo, cfg.IsDetached, cfg.SourceUserID = false, false, ""
		if err := tx.SaveScopeConfig(ctx, cfg); err != nil {
			return State{}, err
		}

		var changed []*store.ScopeGitHubConfig
		if !s.Enabled && linked {
			changed = DetachSharedConfigs(&previous, configs)
		} else {
			changed = PropagateOwnerConfiguration(cfg, configs)
		}
		if err := saveConfigs(ctx, tx, changed); err != nil {
			return State{}, fmt.Errorf("update collaborator configs: %w", err)
		}
	} else {
		s.applyTo(cfg)
		cfg.IsDetached = false
		var owner *store.ScopeGitHubConfig
		for _, c := range configs {
			if c.UserID == scope.OwnerID {
				owner = c
			}
		}
		if owner != nil && s.Enabled && SharesRepository(cfg, owner) {
			cfg.IsSharedRepo = true
			cfg.SourceUserID = owner.UserID
		} else {
			clearSharedFlags(cfg)
		}
		if err := tx.SaveScopeConfig(ctx, cfg); err != nil {
			return State{}, err
		}
	}

	return ScopeState(ctx, tx, scope, user.ID)
}
