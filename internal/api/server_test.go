package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
)

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do(http.MethodGet, "/healthz", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	body := ReadJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("status = %q, want ok", body["status"])
	}
}

func TestRequestIDIsUUID(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do(http.MethodGet, "/healthz", "", nil)
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", resp.Header.Get("X-Request-ID"), err)
	}

	req, _ := http.NewRequest(http.MethodGet, h.BaseURL+"/healthz", nil)
	want := uuid.NewString()
	req.Header.Set("X-Request-ID", want)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != want {
		t.Errorf("request id = %q, want propagated %q", got, want)
	}
}

func TestRequireUser(t *testing.T) {
	h := newTestHarness(t)
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", "u_nobody", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestSetTokenAndListRepos(t *testing.T) {
	h := newTestHarness(t)
	user := h.CreateUser("dev@test.com")

	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", user, nil), http.StatusConflict, ErrCodeNotConfigured)
	AssertErrorResponse(t, h.Do(http.MethodPut, "/v1/me/github-token", user, SetTokenRequest{Token: "bad"}), http.StatusUnprocessableEntity, ErrCodeValidation)

	AssertStatus(t, h.Do(http.MethodPut, "/v1/me/github-token", user, SetTokenRequest{Token: harnessToken}), http.StatusOK)

	repos := ReadJSON[[]map[string]any](t, h.Do(http.MethodGet, "/v1/github/repos", user, nil))
	if len(repos) != 1 || repos[0]["name"] != "app" || repos[0]["owner"] != "octo" {
		t.Fatalf("repos = %v", repos)
	}

	milestones := ReadJSON[[]map[string]any](t, h.Do(http.MethodGet, "/v1/github/repos/octo/app/milestones", user, nil))
	if len(milestones) != 1 || milestones[0]["title"] != "v1" {
		t.Fatalf("milestones = %v", milestones)
	}
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos/octo/nope/milestones", user, nil), http.StatusNotFound, ErrCodeNotFound)

	AssertStatus(t, h.Do(http.MethodDelete, "/v1/me/github-token", user, nil), http.StatusNoContent)
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", user, nil), http.StatusConflict, ErrCodeNotConfigured)
}

func TestScopeConfigValidation(t *testing.T) {
	h := newTestHarness(t)
	owner := h.CreateUser("owner@test.com")
	scope := h.CreateScope(owner, "Frontend")

	AssertErrorResponse(t, h.Do(http.MethodPut, "/v1/scopes/"+scope+"/github", owner, ScopeConfigRequest{
		Enabled: true, RepoOwner: "octo", RepoName: "app",
	}), http.StatusUnprocessableEntity, ErrCodeValidation)

	AssertErrorResponse(t, h.Do(http.MethodPut, "/v1/scopes/"+scope+"/github", owner, ScopeConfigRequest{
		LabelName: "has space",
	}), http.StatusUnprocessableEntity, ErrCodeValidation)

	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/scopes/s_missing/github", owner, nil), http.StatusNotFound, ErrCodeNotFound)

	resp := h.Do(http.MethodPut, "/v1/scopes/"+scope+"/github", owner, "not an object")
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestCollaboratorSeesOwnerConfig(t *testing.T) {
	h := newTestHarness(t)
	owner, scope, _ := h.LinkedScope()
	collab := h.CreateUser("collab@test.com")
	h.update(func(ctx context.Context, tx *store.Tx) error { return tx.ShareScope(ctx, scope, collab, true) })

	var cfg ScopeConfigResponse
	h.DoJSON(http.MethodGet, "/v1/scopes/"+scope+"/github", collab, nil, &cfg)
	if cfg.IsOwner || !cfg.Enabled || cfg.Repository != "octo/app" || cfg.HasOwnConfig {
		t.Fatalf("collaborator config = %+v", cfg)
	}
	if cfg.Label != "frontend" {
		t.Errorf("label = %q, want frontend", cfg.Label)
	}

	h.DoJSON(http.MethodGet, "/v1/scopes/"+scope+"/github", owner, nil, &cfg)
	if !cfg.IsOwner || !cfg.HasOwnConfig {
		t.Errorf("owner config = %+v", cfg)
	}
}

func TestTaskIssueLifecycle(t *testing.T) {
	h := newTestHarness(t)
	owner, _, task := h.LinkedScope()

	var res ResultResponse
	resp := h.DoJSON(http.MethodPost, "/v1/tasks/"+task+"/tags", owner, TagRequest{Name: "bug"}, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add tag status = %d", resp.StatusCode)
	}

	resp = h.DoJSON(http.MethodPost, "/v1/tasks/"+task+"/github/issue", owner, nil, &res)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create issue status = %d", resp.StatusCode)
	}
	if !res.GitHub.Linked || res.GitHub.IssueNumber == nil || *res.GitHub.IssueNumber != 1 {
		t.Fatalf("github = %+v", res.GitHub)
	}
	if res.GitHub.Repository != "octo/app" {
		t.Errorf("repository = %q", res.GitHub.Repository)
	}

	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/issue", owner, nil), http.StatusConflict, ErrCodeAlreadyLinked)
	AssertErrorResponse(t, h.Do(http.MethodDelete, "/v1/tasks/"+task, owner, nil), http.StatusConflict, ErrCodeIssueOpen)

	h.DoJSON(http.MethodPatch, "/v1/tasks/"+task+"/github/milestone", owner, MilestoneRequest{MilestoneNumber: intPtr(5)}, &res)
	if res.GitHub.MilestoneNumber == nil || *res.GitHub.MilestoneNumber != 5 || res.GitHub.MilestoneTitle != "v1" {
		t.Errorf("milestone = %+v", res.GitHub)
	}

	h.DoJSON(http.MethodPost, "/v1/tasks/"+task+"/toggle", owner, nil, &res)
	if !res.Task.Completed || res.GitHub.IssueState != "closed" {
		t.Fatalf("after toggle task=%+v github=%+v", res.Task, res.GitHub)
	}

	var status TaskStatusResponse
	h.DoJSON(http.MethodGet, "/v1/tasks/"+task+"/github", owner, nil, &status)
	if status.OpenLink || status.CanLink {
		t.Errorf("status = %+v", status)
	}
	if fmt.Sprint(status.Task.Tags) != "[bug github]" {
		t.Errorf("tags = %v", status.Task.Tags)
	}

	logs := ReadJSON[[]SyncLogResponse](t, h.Do(http.MethodGet, "/v1/tasks/"+task+"/sync-log?limit=2", owner, nil))
	if len(logs) != 2 || logs[0].Action != syncer.ActionCloseIssue {
		t.Fatalf("logs = %+v", logs)
	}

	var deleted map[string]any
	h.DoJSON(http.MethodDelete, "/v1/tasks/"+task, owner, nil, &deleted)
	if deleted["deleted"] != task {
		t.Errorf("deleted = %v", deleted)
	}
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/tasks/"+task+"/github", owner, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestRemoteErrorsMapToStatus(t *testing.T) {
	h := newTestHarness(t)
	owner, _, task := h.LinkedScope()
	AssertStatus(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/issue", owner, nil), http.StatusCreated)

	h.GitHub.Fail(http.MethodGet, "/repos/octo/app/issues/1", http.StatusInternalServerError)
	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/sync", owner, nil), http.StatusBadGateway, ErrCodeGitHubUnavailable)

	h.GitHub.SetToken("revoked")
	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/toggle", owner, nil), http.StatusUnauthorized, ErrCodeGitHubAuthFailed)
	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/toggle", owner, nil), http.StatusConflict, ErrCodeNotConfigured)

	snap := ReadJSON[MetricsSnapshot](t, h.Do(http.MethodGet, "/metricz", "", nil))
	if snap.RemoteFailures != 2 || snap.IssuesCreated != 1 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestMissingIssueUnlinksOverHTTP(t *testing.T) {
	h := newTestHarness(t)
	owner, _, task := h.LinkedScope()
	AssertStatus(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/issue", owner, nil), http.StatusCreated)
	h.GitHub.DeleteIssue("octo", "app", 1)

	var res ResultResponse
	h.DoJSON(http.MethodPost, "/v1/tasks/"+task+"/github/sync", owner, nil, &res)
	if !res.Unlinked || res.GitHub.Linked {
		t.Fatalf("result = %+v", res)
	}
	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/labels", owner, nil), http.StatusConflict, ErrCodeNotLinked)
}

func TestRefreshEndpoint(t *testing.T) {
	h := newTestHarness(t)
	owner, _, task := h.LinkedScope()
	AssertStatus(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/github/issue", owner, nil), http.StatusCreated)

	var report syncer.RefreshReport
	h.DoJSON(http.MethodPost, "/v1/github/refresh", owner, nil, &report)
	if report.Checked != 1 || report.Synced != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestEntityDispatch(t *testing.T) {
	h := newTestHarness(t)
	owner, scope, task := h.LinkedScope()

	var ent EntityResponse
	h.DoJSON(http.MethodGet, "/v1/entities/scope/"+scope+"/github", owner, nil, &ent)
	if ent.Kind != "scope" || ent.Scope == nil || ent.Scope.Repository != "octo/app" {
		t.Fatalf("scope entity = %+v", ent)
	}
	h.DoJSON(http.MethodGet, "/v1/entities/task/"+task+"/github", owner, nil, &ent)
	if ent.Kind != "task" || ent.Task == nil || !ent.Task.CanLink {
		t.Fatalf("task entity = %+v", ent)
	}
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/entities/board/x/github", owner, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestReservedTagRejected(t *testing.T) {
	h := newTestHarness(t)
	owner, _, task := h.LinkedScope()
	AssertErrorResponse(t, h.Do(http.MethodPost, "/v1/tasks/"+task+"/tags", owner, TagRequest{Name: "GitHub"}), http.StatusUnprocessableEntity, ErrCodeValidation)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("close_issue: %w", syncer.ErrAuthFailed), http.StatusUnauthorized, ErrCodeGitHubAuthFailed},
		{fmt.Errorf("sync: %w", syncer.ErrCommunication), http.StatusBadGateway, ErrCodeGitHubUnavailable},
		{syncer.ErrNotConfigured, http.StatusConflict, ErrCodeNotConfigured},
		{syncer.ErrOpenIssue, http.StatusConflict, ErrCodeIssueOpen},
		{fmt.Errorf("task t_1: %w", syncer.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range tests {
		status, code, _ := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("errorStatus(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error.Code != ErrCodeInternal {
		t.Fatalf("body = %+v, %v", resp, err)
	}
}

func intPtr(v int) *int { return &v }
