package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus/scopes/internal/crypto"
	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/github/githubtest"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
)

const harnessToken = "ghp_harness"

// TestHarness wraps a full Server and a fake GitHub for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *store.Store
	GitHub  *githubtest.Server
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	st, err := store.Open(store.DriverModernc, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	gh := githubtest.NewServer(harnessToken)
	gh.AddRepo("octo", "app")
	gh.AddMilestone("octo", "app", githubtest.Milestone{Number: 5, Title: "v1"})

	vault, err := crypto.NewVault("harness-secret")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	engine := syncer.New(st, github.New(gh.URL, gh.GraphQLURL(), 5*time.Second), vault, nil)

	cfg := Config{ListenAddr: ":0"}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := NewServer(cfg, st, engine)
	httpSrv := httptest.NewServer(srv.Handler())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   st,
		GitHub:  gh,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		gh.Close()
		st.Close()
	})

	return h
}

// Do sends an HTTP request as userID and returns the response.
// Caller must close resp.Body unless using assertion helpers (AssertStatus,
// AssertErrorResponse, ReadJSON) which close it automatically.
func (h *TestHarness) Do(method, path, userID string, body any) *http.Response {
	h.t.Helper()

	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		rdr = &buf
	}

	req, err := http.NewRequest(method, h.BaseURL+path, rdr)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON sends an HTTP request and decodes the JSON response into out.
// Fatals if the response status is >= 400 or if JSON decoding fails.
func (h *TestHarness) DoJSON(method, path, userID string, body any, out any) *http.Response {
	h.t.Helper()

	resp := h.Do(method, path, userID, body)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
	return resp
}

// update runs fn in a store transaction, failing the test on error.
func (h *TestHarness) update(fn func(ctx context.Context, tx *store.Tx) error) {
	h.t.Helper()
	ctx := context.Background()
	if err := h.Store.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) }); err != nil {
		h.t.Fatalf("update: %v", err)
	}
}

// CreateUser creates a user and returns its id.
func (h *TestHarness) CreateUser(email string) string {
	h.t.Helper()
	var id string
	h.update(func(ctx context.Context, tx *store.Tx) error {
		u, err := tx.CreateUser(ctx, email)
		if err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	return id
}

// CreateScope creates a scope owned by ownerID, shared with members.
func (h *TestHarness) CreateScope(ownerID, name string, members ...string) string {
	h.t.Helper()
	var id string
	h.update(func(ctx context.Context, tx *store.Tx) error {
		sc, err := tx.CreateScope(ctx, name, "", ownerID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := tx.ShareScope(ctx, sc.ID, m, true); err != nil {
				return err
			}
		}
		id = sc.ID
		return nil
	})
	return id
}

// CreateTask creates a task in scopeID.
func (h *TestHarness) CreateTask(scopeID, ownerID, name string) string {
	h.t.Helper()
	var id string
	h.update(func(ctx context.Context, tx *store.Tx) error {
		task, err := tx.CreateTask(ctx, store.NewTask{ScopeID: scopeID, OwnerID: ownerID, Name: name})
		if err != nil {
			return err
		}
		id = task.ID
		return nil
	})
	return id
}

// LinkedScope sets up an owner with a token, a scope mirrored to
// octo/app and one task. It returns the owner, scope and task ids.
func (h *TestHarness) LinkedScope() (string, string, string) {
	h.t.Helper()
	owner := h.CreateUser("owner@test.com")
	scope := h.CreateScope(owner, "Frontend")
	task := h.CreateTask(scope, owner, "Ship it")

	AssertStatus(h.t, h.Do(http.MethodPut, "/v1/me/github-token", owner, SetTokenRequest{Token: harnessToken}), http.StatusOK)
	AssertStatus(h.t, h.Do(http.MethodPut, "/v1/scopes/"+scope+"/github", owner, ScopeConfigRequest{
		Enabled: true, RepoOwner: "octo", RepoName: "app",
	}), http.StatusOK)
	return owner, scope, task
}

// --- Response assertion helpers ---

// AssertStatus checks the HTTP status code matches expected and closes the body.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// AssertErrorResponse checks the response has the expected status and error code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(body))
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q: %s", expectedCode, errResp.Error.Code, errResp.Error.Message)
	}
}

// ReadJSON decodes a JSON response body into the given type.
func ReadJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json response: %v", err)
	}
	return out
}

// AssertCORSHeaders checks the response has the expected CORS origin header.
func AssertCORSHeaders(t *testing.T, resp *http.Response, expectedOrigin string) {
	t.Helper()
	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin != expectedOrigin {
		t.Fatalf("expected Access-Control-Allow-Origin %q, got %q", expectedOrigin, origin)
	}
}
