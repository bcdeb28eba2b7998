package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/marcus/scopes/internal/store"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func ownerConfig() *store.ScopeGitHubConfig {
	return &store.ScopeGitHubConfig{
		ScopeID:         "s_1",
		UserID:          "u_owner",
		Enabled:         true,
		RepoID:          int64p(123),
		RepoOwner:       "octocat",
		RepoName:        "project",
		ProjectID:       "proj",
		ProjectName:     "Main",
		MilestoneNumber: intp(7),
		MilestoneTitle:  "Release",
		LabelName:       "team",
	}
}

var testScope = &store.Scope{ID: "s_1", Name: "Frontend", OwnerID: "u_owner"}

func TestSharesRepository(t *testing.T) {
	tests := []struct {
		name string
		a, b store.ScopeGitHubConfig
		want bool
	}{
		{"same id", store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "a", RepoName: "b"}, store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "x", RepoName: "y"}, true},
		{"different id same name", store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "a", RepoName: "b"}, store.ScopeGitHubConfig{RepoID: int64p(2), RepoOwner: "a", RepoName: "b"}, false},
		{"one id, name case-insensitive", store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "Octo", RepoName: "Repo"}, store.ScopeGitHubConfig{RepoOwner: "octo", RepoName: "repo"}, true},
		{"different names", store.ScopeGitHubConfig{RepoOwner: "octo", RepoName: "repo"}, store.ScopeGitHubConfig{RepoOwner: "octo", RepoName: "other"}, false},
		{"missing name", store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "octo"}, store.ScopeGitHubConfig{RepoID: int64p(1), RepoOwner: "octo", RepoName: "repo"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SharesRepository(&tc.a, &tc.b); got != tc.want {
				t.Errorf("SharesRepository = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsLinkedToRequiresSharedFlags(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{UserID: "u_collab", RepoID: int64p(123), RepoOwner: "OctoCat", RepoName: "Project"}
	if IsLinkedTo(collab, owner) {
		t.Fatal("unshared config reported linked")
	}

	markSharedWith(collab, owner)
	if !IsLinkedTo(collab, owner) {
		t.Fatal("shared config not linked")
	}

	collab.IsDetached = true
	if IsLinkedTo(collab, owner) {
		t.Error("detached config reported linked")
	}

	collab.IsDetached = false
	collab.RepoName = "other"
	collab.RepoID = int64p(999)
	if IsLinkedTo(collab, owner) {
		t.Error("config on another repository reported linked")
	}
}

func TestComputeStateLinkedUsesOwnerValues(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{
		UserID:       "u_collab",
		Enabled:      true,
		RepoID:       int64p(123),
		RepoOwner:    "octocat",
		RepoName:     "project",
		LabelName:    "stale",
		IsSharedRepo: true,
		SourceUserID: "u_owner",
	}

	st := ComputeState(testScope, "u_collab", []*store.ScopeGitHubConfig{owner, collab})
	if !st.LinkedToOwner {
		t.Fatal("LinkedToOwner = false, want true")
	}
	if st.EffectiveConfig != owner {
		t.Error("effective config should be the owner's row")
	}
	if st.UserConfig != collab || st.OwnerConfig != owner {
		t.Error("user/owner configs not resolved")
	}
	if got := EffectiveLabel(st, testScope); got != "team" {
		t.Errorf("EffectiveLabel = %q, want team", got)
	}
}

func TestComputeStateIndependentKeepsOwnValues(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{
		UserID:          "u_collab",
		Enabled:         true,
		RepoID:          int64p(456),
		RepoOwner:       "someone",
		RepoName:        "else",
		MilestoneNumber: intp(2),
		LabelName:       "mine",
	}

	st := ComputeState(testScope, "u_collab", []*store.ScopeGitHubConfig{owner, collab})
	if st.LinkedToOwner {
		t.Fatal("LinkedToOwner = true, want false")
	}
	if st.EffectiveConfig != collab {
		t.Fatal("effective config should be the collaborator's row")
	}
	if st.EffectiveConfig.RepoName != "else" || *st.EffectiveConfig.MilestoneNumber != 2 {
		t.Errorf("collaborator values changed: %+v", st.EffectiveConfig)
	}
}

func TestComputeStateFallbacks(t *testing.T) {
	owner := ownerConfig()

	st := ComputeState(testScope, "u_owner", []*store.ScopeGitHubConfig{owner})
	if st.UserConfig != owner || st.EffectiveConfig != owner || st.LinkedToOwner {
		t.Errorf("owner state = %+v", st)
	}
	if !st.Enabled() {
		t.Error("owner state should be enabled")
	}

	st = ComputeState(testScope, "u_other", []*store.ScopeGitHubConfig{owner})
	if st.UserConfig != nil || st.EffectiveConfig != owner {
		t.Errorf("no user config should fall back to owner: %+v", st)
	}

	st = ComputeState(testScope, "u_other", nil)
	if st.EffectiveConfig != nil || st.Enabled() {
		t.Errorf("no configs: %+v", st)
	}
	if got := EffectiveLabel(st, testScope); got != "frontend" {
		t.Errorf("EffectiveLabel = %q, want frontend", got)
	}
}

func TestComputeStateDetached(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{UserID: "u_collab", RepoOwner: "octocat", RepoName: "project", IsSharedRepo: true, SourceUserID: "u_owner"}
	DetachSharedConfigs(owner, []*store.ScopeGitHubConfig{owner, collab})

	st := ComputeState(testScope, "u_collab", []*store.ScopeGitHubConfig{owner, collab})
	if st.LinkedToOwner || !st.DetachedFromOwner {
		t.Errorf("state = linked %v detached %v, want false/true", st.LinkedToOwner, st.DetachedFromOwner)
	}
	if st.EffectiveConfig != collab {
		t.Error("detached collaborator should use its own snapshot")
	}
}

func TestPropagateLinksCollaborators(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{UserID: "u_collab", RepoOwner: "octocat", RepoName: "project"}

	changed := PropagateOwnerConfiguration(owner, []*store.ScopeGitHubConfig{owner, collab})
	if len(changed) != 1 || changed[0] != collab {
		t.Fatalf("changed = %v", changed)
	}
	if !collab.IsSharedRepo || collab.IsDetached || collab.SourceUserID != "u_owner" {
		t.Errorf("flags = shared %v detached %v source %q", collab.IsSharedRepo, collab.IsDetached, collab.SourceUserID)
	}
	if !collab.Enabled || collab.ProjectID != "proj" || collab.ProjectName != "Main" ||
		*collab.MilestoneNumber != 7 || collab.MilestoneTitle != "Release" || collab.LabelName != "team" {
		t.Errorf("owner values not cloned: %+v", collab)
	}

	*owner.MilestoneNumber = 8
	if *collab.MilestoneNumber != 7 {
		t.Error("milestone pointer shared with owner")
	}
}

func TestPropagateClearsOldShares(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{
		UserID:       "u_collab",
		RepoOwner:    "someone",
		RepoName:     "else",
		LabelName:    "kept",
		IsSharedRepo: true,
		SourceUserID: "u_owner",
	}

	PropagateOwnerConfiguration(owner, []*store.ScopeGitHubConfig{owner, collab})
	if collab.IsSharedRepo || collab.IsDetached || collab.SourceUserID != "" {
		t.Errorf("flags = shared %v detached %v source %q", collab.IsSharedRepo, collab.IsDetached, collab.SourceUserID)
	}
	if collab.RepoName != "else" || collab.LabelName != "kept" {
		t.Errorf("independent values touched: %+v", collab)
	}
}

func TestDetachPreservesSnapshot(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{
		UserID:          "u_collab",
		RepoOwner:       "octocat",
		RepoName:        "project",
		ProjectID:       "old",
		MilestoneNumber: intp(1),
		LabelName:       "legacy",
		IsSharedRepo:    true,
		SourceUserID:    "u_owner",
	}
	unrelated := &store.ScopeGitHubConfig{UserID: "u_third", RepoOwner: "x", RepoName: "y"}

	changed := DetachSharedConfigs(owner, []*store.ScopeGitHubConfig{owner, collab, unrelated})
	if len(changed) != 1 {
		t.Fatalf("changed %d configs, want 1", len(changed))
	}
	if collab.IsSharedRepo || !collab.IsDetached || collab.SourceUserID != "u_owner" {
		t.Errorf("flags = shared %v detached %v source %q", collab.IsSharedRepo, collab.IsDetached, collab.SourceUserID)
	}
	if collab.RepoName != "project" || collab.ProjectID != "proj" || collab.LabelName != "team" ||
		*collab.MilestoneNumber != 7 || collab.Enabled != owner.Enabled {
		t.Errorf("snapshot = %+v", collab)
	}
	if unrelated.IsDetached {
		t.Error("unlinked config detached")
	}
}

func TestDetachThenPropagateRelinks(t *testing.T) {
	owner := ownerConfig()
	collab := &store.ScopeGitHubConfig{UserID: "u_collab", RepoID: int64p(123), RepoOwner: "octocat", RepoName: "project", IsSharedRepo: true, SourceUserID: "u_owner"}
	configs := []*store.ScopeGitHubConfig{owner, collab}

	DetachSharedConfigs(owner, configs)
	if !collab.IsDetached {
		t.Fatal("not detached")
	}
	PropagateOwnerConfiguration(owner, configs)
	if !collab.IsSharedRepo || collab.IsDetached {
		t.Errorf("after re-propagate shared %v detached %v, want true/false", collab.IsSharedRepo, collab.IsDetached)
	}
}

func TestDefaultLabel(t *testing.T) {
	tests := map[string]string{
		"Frontend Development":    "frontend-development",
		"Frontend & Development!": "frontend-development",
		"Frontend    Development": "frontend-development",
		"Frontend-Development":    "frontend-development",
		"Frontend_Development":    "frontend-development",
		"  --Ops--  ":             "ops",
		"":                        "projectsmanager",
		"!!!":                     "projectsmanager",
	}
	for in, want := range tests {
		if got := DefaultLabel(in); got != want {
			t.Errorf("DefaultLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsReservedTag(t *testing.T) {
	for _, name := range []string{"github", "GitHub", " github ", "ProjectsManager", "projectsmanager"} {
		if !IsReservedTag(name) {
			t.Errorf("IsReservedTag(%q) = false", name)
		}
	}
	if IsReservedTag("bug") {
		t.Error("IsReservedTag(bug) = true")
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		s        Settings
		hasToken bool
		want     error
	}{
		{"disabled needs nothing", Settings{}, false, nil},
		{"enabled needs token", Settings{Enabled: true, RepoOwner: "o", RepoName: "r"}, false, ErrTokenRequired},
		{"enabled needs repo", Settings{Enabled: true}, true, ErrRepositoryRequired},
		{"bad label", Settings{LabelName: "front end"}, true, ErrInvalidLabel},
		{"ok", Settings{Enabled: true, RepoOwner: "o", RepoName: "r", LabelName: "front_end-1"}, true, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.s.Validate(tc.hasToken); !errors.Is(err, tc.want) {
				t.Errorf("Validate = %v, want %v", err, tc.want)
			}
		})
	}
}

// --- persistence ---

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverModernc, ":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type env struct {
	s      *store.Store
	owner  *store.User
	collab *store.User
	scope  *store.Scope
	task   *store.Task
}

func setup(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	e := env{s: newTestStore(t)}
	err := e.s.Update(ctx, func(tx *store.Tx) error {
		var err error
		if e.owner, err = tx.CreateUser(ctx, "owner@test.com"); err != nil {
			return err
		}
		if e.collab, err = tx.CreateUser(ctx, "collab@test.com"); err != nil {
			return err
		}
		for _, u := range []*store.User{e.owner, e.collab} {
			if err := tx.SetGitHubCredentials(ctx, u.ID, true, []byte("sealed")); err != nil {
				return err
			}
			u.GitHubEnabled, u.GitHubTokenEncrypted = true, []byte("sealed")
		}
		if e.scope, err = tx.CreateScope(ctx, "Frontend", "", e.owner.ID); err != nil {
			return err
		}
		if err := tx.ShareScope(ctx, e.scope.ID, e.collab.ID, true); err != nil {
			return err
		}
		e.task, err = tx.CreateTask(ctx, store.NewTask{ScopeID: e.scope.ID, OwnerID: e.owner.ID, Name: "Ship"})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return e
}

func (e env) update(t *testing.T, fn func(ctx context.Context, tx *store.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := e.s.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestConfigureScopeOwnerPropagatesAndDetaches(t *testing.T) {
	e := setup(t)
	repo := Settings{Enabled: true, RepoID: int64p(1), RepoOwner: "octo", RepoName: "repo", MilestoneNumber: intp(5), MilestoneTitle: "v1"}

	e.update(t, func(ctx context.Context, tx *store.Tx) error {
		if _, err := ConfigureScope(ctx, tx, e.scope, e.owner, repo); err != nil {
			return err
		}
		st, err := ConfigureScope(ctx, tx, e.scope, e.collab, Settings{Enabled: true, RepoOwner: "Octo", RepoName: "Repo"})
		if err != nil {
			return err
		}
		if !st.LinkedToOwner || *st.EffectiveConfig.MilestoneNumber != 5 {
			t.Errorf("collaborator not linked: %+v", st)
		}

		// Owner changes milestone; collaborator row mirrors it.
		repo.MilestoneNumber = intp(6)
		if _, err := ConfigureScope(ctx, tx, e.scope, e.owner, repo); err != nil {
			return err
		}
		c, _ := tx.GetScopeConfig(ctx, e.scope.ID, e.collab.ID)
		if c.MilestoneNumber == nil || *c.MilestoneNumber != 6 || !c.IsSharedRepo {
			t.Errorf("propagated collaborator = %+v", c)
		}

		// Owner disables; collaborator keeps a working snapshot.
		if _, err := ConfigureScope(ctx, tx, e.scope, e.owner, Settings{}); err != nil {
			return err
		}
		c, _ = tx.GetScopeConfig(ctx, e.scope.ID, e.collab.ID)
		if !c.IsDetached || c.IsSharedRepo || c.RepoName != "repo" || !c.Enabled || c.SourceUserID != e.owner.ID {
			t.Errorf("detached collaborator = %+v", c)
		}
		st, err = ScopeState(ctx, tx, e.scope, e.collab.ID)
		if err != nil {
			return err
		}
		if !st.DetachedFromOwner || !st.Enabled() || st.EffectiveConfig.UserID != e.collab.ID {
			t.Errorf("collaborator state after detach = %+v", st)
		}

		o, _ := tx.GetScopeConfig(ctx, e.scope.ID, e.owner.ID)
		if o.Enabled || o.HasRepository() {
			t.Errorf("owner config after disable = %+v", o)
		}
		return nil
	})
}

func TestConfigureScopeCollaboratorIndependent(t *testing.T) {
	e := setup(t)
	e.update(t, func(ctx context.Context, tx *store.Tx) error {
		ConfigureScope(ctx, tx, e.scope, e.owner, Settings{Enabled: true, RepoOwner: "octo", RepoName: "repo"})
		st, err := ConfigureScope(ctx, tx, e.scope, e.collab, Settings{Enabled: true, RepoOwner: "me", RepoName: "mine", LabelName: "solo"})
		if err != nil {
			return err
		}
		if st.LinkedToOwner || st.EffectiveConfig.RepoFullName() != "me/mine" {
			t.Errorf("state = %+v", st)
		}
		if got := EffectiveLabel(st, e.scope); got != "solo" {
			t.Errorf("EffectiveLabel = %q", got)
		}
		return nil
	})
}

func TestConfigureScopeValidation(t *testing.T) {
	e := setup(t)
	e.owner.GitHubTokenEncrypted = nil
	err := e.s.Update(context.Background(), func(tx *store.Tx) error {
		_, err := ConfigureScope(context.Background(), tx, e.scope, e.owner, Settings{Enabled: true, RepoOwner: "o", RepoName: "r"})
		return err
	})
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("err = %v, want ErrTokenRequired", err)
	}
}

func TestTaskConfigStore(t *testing.T) {
	e := setup(t)
	e.update(t, func(ctx context.Context, tx *store.Tx) error {
		if cfg, _ := EffectiveTaskConfig(ctx, tx, e.task, e.collab.ID); cfg != nil {
			t.Errorf("effective config before any row = %+v", cfg)
		}

		ownerCfg, err := EnsureTaskConfig(ctx, tx, e.task.ID, e.owner.ID)
		if err != nil {
			return err
		}
		again, _ := EnsureTaskConfig(ctx, tx, e.task.ID, e.owner.ID)
		if again.ID != ownerCfg.ID {
			t.Error("EnsureTaskConfig created a second row")
		}

		cfg, _ := EffectiveTaskConfig(ctx, tx, e.task, e.collab.ID)
		if cfg == nil || cfg.ID != ownerCfg.ID {
			t.Error("collaborator should fall back to owner's task config")
		}
		own, _ := EnsureTaskConfig(ctx, tx, e.task.ID, e.collab.ID)
		cfg, _ = EffectiveTaskConfig(ctx, tx, e.task, e.collab.ID)
		if cfg.ID != own.ID {
			t.Error("collaborator's own row should win")
		}
		return nil
	})
}

func TestClearIssueLinkKeepsRowAndHiddenTagInvariant(t *testing.T) {
	e := setup(t)
	e.update(t, func(ctx context.Context, tx *store.Tx) error {
		link := func(userID string, number int) *store.TaskGitHubConfig {
			cfg, _ := EnsureTaskConfig(ctx, tx, e.task.ID, userID)
			cfg.IssueID = int64p(int64(1000 + number))
			cfg.IssueNumber = intp(number)
			cfg.IssueState = "open"
			cfg.RepoOwner, cfg.RepoName = "octo", "repo"
			cfg.MilestoneNumber = intp(5)
			tx.SaveTaskConfig(ctx, cfg)
			return cfg
		}
		ownerCfg := link(e.owner.ID, 1)
		collabCfg := link(e.collab.ID, 2)
		if err := SyncHiddenTag(ctx, tx, e.task); err != nil {
			return err
		}
		hasHidden := func() bool {
			tags, _ := tx.TaskTags(ctx, e.task.ID)
			for _, tg := range tags {
				if tg.Name == HiddenTag {
					return true
				}
			}
			return false
		}
		if !hasHidden() {
			t.Fatal("hidden tag not attached")
		}
		if !IssueIsOpen(ownerCfg) {
			t.Error("IssueIsOpen = false for open link")
		}

		if err := ClearIssueLink(ctx, tx, e.task, ownerCfg); err != nil {
			return err
		}
		if !hasHidden() {
			t.Error("hidden tag removed while another config is linked")
		}
		if err := ClearIssueLink(ctx, tx, e.task, collabCfg); err != nil {
			return err
		}
		if hasHidden() {
			t.Error("hidden tag kept after last link cleared")
		}

		got, _ := tx.GetTaskConfig(ctx, e.task.ID, e.owner.ID)
		if got == nil {
			t.Fatal("config row deleted")
		}
		if got.HasIssueLink() || got.RepoOwner != "" || got.MilestoneNumber != nil || got.IssueState != "" {
			t.Errorf("cleared config = %+v", got)
		}
		if IssueIsOpen(got) {
			t.Error("IssueIsOpen = true for cleared link")
		}
		return nil
	})
}

func TestReplaceTagsFromLabels(t *testing.T) {
	e := setup(t)
	e.update(t, func(ctx context.Context, tx *store.Tx) error {
		cfg, _ := EnsureTaskConfig(ctx, tx, e.task.ID, e.owner.ID)
		cfg.IssueID, cfg.IssueNumber = int64p(1), intp(1)
		tx.SaveTaskConfig(ctx, cfg)

		local, _ := tx.GetOrCreateTag(ctx, e.scope.ID, "local-only")
		tx.AttachTag(ctx, e.task.ID, local.ID)

		if err := ReplaceTagsFromLabels(ctx, tx, e.task, []string{"bug", "feature", "ProjectsManager", "bug"}); err != nil {
			return err
		}
		tags, _ := tx.TaskTags(ctx, e.task.ID)
		var names []string
		for _, tg := range tags {
			names = append(names, tg.Name)
		}
		want := []string{"bug", "feature", "github"}
		if len(names) != len(want) {
			t.Fatalf("tags = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("tags = %v, want %v", names, want)
				break
			}
		}

		labels, err := TaskLabels(ctx, tx, e.task.ID)
		if err != nil {
			return err
		}
		if len(labels) != 2 || labels[0] != "bug" || labels[1] != "feature" {
			t.Errorf("TaskLabels = %v", labels)
		}
		return nil
	})
}
