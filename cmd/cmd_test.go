package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/scopes/internal/config"
	"github.com/marcus/scopes/internal/github/githubtest"
	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
	"github.com/spf13/cobra"
)

func TestTaskCommandsRequireArgs(t *testing.T) {
	tests := []struct {
		name string
		args cobra.PositionalArgs
		ok   []string
		bad  []string
	}{
		{"link", taskLinkCmd.Args, []string{"t_1"}, []string{}},
		{"milestone", taskMilestoneCmd.Args, []string{"t_1", "3"}, []string{"t_1"}},
		{"tag", taskTagCmd.Args, []string{"t_1", "bug"}, []string{"t_1", "bug", "x"}},
		{"delete", taskDeleteCmd.Args, []string{"t_1"}, []string{"t_1", "t_2"}},
	}
	for _, tc := range tests {
		if err := tc.args(nil, tc.ok); err != nil {
			t.Errorf("%s: %v should be valid: %v", tc.name, tc.ok, err)
		}
		if err := tc.args(nil, tc.bad); err == nil {
			t.Errorf("%s: %v should be rejected", tc.name, tc.bad)
		}
	}
}

func TestScopeConfigureFlags(t *testing.T) {
	for _, name := range []string{"repo", "project", "milestone", "label", "disable"} {
		if scopeConfigureCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag on scope configure", name)
		}
	}
	if rootCmd.PersistentFlags().ShorthandLookup("u") == nil {
		t.Error("expected -u shorthand for --user")
	}
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := splitRepo(" octo/app ")
	if err != nil || owner != "octo" || name != "app" {
		t.Fatalf("splitRepo = %q %q %v", owner, name, err)
	}
	for _, bad := range []string{"", "octo", "/app", "octo/"} {
		if _, _, err := splitRepo(bad); err == nil {
			t.Errorf("splitRepo(%q) should fail", bad)
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", syncer.ErrAuthFailed), output.ErrCodeGitHubAuth},
		{syncer.ErrCommunication, output.ErrCodeGitHubFailure},
		{syncer.ErrNotFound, output.ErrCodeNotFound},
		{syncer.ErrReservedTag, output.ErrCodeInvalidInput},
		{syncer.ErrOpenIssue, output.ErrCodeConflict},
		{errors.New("disk full"), output.ErrCodeDatabaseError},
	}
	for _, tc := range tests {
		if got := errorCode(tc.err); got != tc.want {
			t.Errorf("errorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestConfigValues(t *testing.T) {
	c := config.Default()
	for key, val := range map[string]string{
		"user":              "u_1",
		"db_driver":         "sqlite3",
		"http_timeout":      "10s",
		"rate_limit_github": "5",
		"github_api_url":    "http://localhost:9999",
	} {
		if err := setConfigValue(&c, key, val); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
		if got := getConfigValue(c, key); got != val {
			t.Errorf("get %s = %q, want %q", key, got, val)
		}
	}
	if err := setConfigValue(&c, "db_driver", "postgres"); err == nil {
		t.Error("expected error for unknown driver")
	}
	if err := setConfigValue(&c, "http_timeout", "-1s"); err == nil {
		t.Error("expected error for negative timeout")
	}
	if isValidConfigKey("app_secret") {
		t.Error("app_secret must not be settable from the CLI")
	}
}

func TestPrintLog(t *testing.T) {
	var buf bytes.Buffer
	printLog(&buf, nil, 0)
	if !strings.Contains(buf.String(), "No sync activity") {
		t.Errorf("empty log = %q", buf.String())
	}

	buf.Reset()
	printLog(&buf, []store.SyncLogEntry{
		{ID: 2, Action: syncer.ActionCloseIssue, Status: store.StatusSuccess, Message: "Closed issue #1", CreatedAt: time.Now()},
		{ID: 1, Action: syncer.ActionCreateIssue, Status: store.StatusSuccess, Message: "Created issue #1", CreatedAt: time.Now()},
	}, 0)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Closed issue #1") {
		t.Errorf("lines = %q", lines)
	}
}

func TestLogModelReload(t *testing.T) {
	reloaded := false
	m := newLogModel("t_1", []store.SyncLogEntry{{Action: syncer.ActionCreateIssue, Status: store.StatusSuccess}}, func() tea.Msg {
		reloaded = true
		return logLoadedMsg{}
	})
	if got := len(m.list.Items()); got != 1 {
		t.Fatalf("items = %d, want 1", got)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected reload command")
	}
	msg := cmd()
	if !reloaded {
		t.Fatal("reload func not called")
	}

	next, _ = next.(logModel).Update(msg)
	if got := len(next.(logModel).list.Items()); got != 0 {
		t.Errorf("items after reload = %d, want 0", got)
	}

	next, _ = next.(logModel).Update(errors.New("db closed"))
	if view := next.(logModel).View(); !strings.Contains(view, "reload failed") {
		t.Errorf("view missing error: %q", view)
	}
	if next.(logModel).list.FilterState() != list.Unfiltered {
		t.Error("filter state changed unexpectedly")
	}
}

func TestEndToEndLink(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scopes.db")

	gh := githubtest.NewServer("ghp_cli")
	gh.AddRepo("octo", "app")
	t.Cleanup(gh.Close)

	t.Setenv("SCOPES_CONFIG_FILE", filepath.Join(dir, "config.yaml"))
	t.Setenv("SCOPES_DB_PATH", dbPath)
	t.Setenv("SCOPES_APP_SECRET", "cli-secret")
	t.Setenv("SCOPES_GITHUB_API_URL", gh.URL)
	t.Setenv("SCOPES_GITHUB_GRAPHQL_URL", gh.GraphQLURL())

	ctx := context.Background()
	st, err := store.Open(store.DriverModernc, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	var user *store.User
	var scope *store.Scope
	var task *store.Task
	err = st.Update(ctx, func(tx *store.Tx) error {
		var err error
		if user, err = tx.CreateUser(ctx, "cli@test.com"); err != nil {
			return err
		}
		if scope, err = tx.CreateScope(ctx, "Backend", "", user.ID); err != nil {
			return err
		}
		task, err = tx.CreateTask(ctx, store.NewTask{ScopeID: scope.ID, OwnerID: user.ID, Name: "Wire CLI"})
		return err
	})
	st.Close()
	if err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) {
		t.Helper()
		rootCmd.SetArgs(append([]string{"--user", user.ID}, args...))
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("scopes %s: %v", strings.Join(args, " "), err)
		}
	}
	run("token", "set", "ghp_cli")
	run("scope", "configure", scope.ID, "--repo", "octo/app", "--label", "backend")
	run("task", "link", task.ID)

	st, err = store.Open(store.DriverModernc, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	err = st.View(ctx, func(tx *store.Tx) error {
		configs, err := tx.ListTaskConfigs(ctx, task.ID)
		if err != nil {
			return err
		}
		if len(configs) != 1 || !configs[0].HasIssueLink() {
			return fmt.Errorf("task configs = %+v", configs)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if iss := gh.Issue("octo", "app", 1); iss == nil {
		t.Fatal("issue not created on GitHub")
	}
	if labels := gh.Labels("octo", "app"); !strings.Contains(strings.Join(labels, ","), "backend") {
		t.Errorf("labels = %v", labels)
	}
}
