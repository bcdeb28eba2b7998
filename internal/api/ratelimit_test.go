package api

import (
	"net/http"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter()
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterTake(t *testing.T) {
	rl, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Take("u_1", 5); !ok {
			t.Fatalf("request %d denied", i+1)
		}
	}

	clock.advance(20 * time.Second)
	ok, wait := rl.Take("u_1", 5)
	if ok {
		t.Fatal("expected deny after limit reached")
	}
	if wait != 40*time.Second {
		t.Errorf("wait = %v, want 40s", wait)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		rl.Take("u_1", 3)
	}
	if ok, _ := rl.Take("u_1", 3); ok {
		t.Fatal("expected deny after limit")
	}

	clock.advance(rateWindow)
	if ok, _ := rl.Take("u_1", 3); !ok {
		t.Fatal("expected allow in the next window")
	}
}

func TestRateLimiterUsersIsolated(t *testing.T) {
	rl, _ := newTestLimiter()

	rl.Take("alice", 1)
	if ok, _ := rl.Take("alice", 1); ok {
		t.Fatal("expected alice denied")
	}
	if ok, _ := rl.Take("bob", 1); !ok {
		t.Fatal("expected bob allowed")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	rl, clock := newTestLimiter()

	rl.Take("idle", 10)
	clock.advance(3 * time.Minute)
	rl.Take("active", 10)
	rl.evict()

	if _, ok := rl.windows["idle"]; ok {
		t.Error("idle window not evicted")
	}
	if _, ok := rl.windows["active"]; !ok {
		t.Error("active window evicted")
	}
}

func TestWithRateLimitPerUser(t *testing.T) {
	h := newTestHarness(t, func(c *Config) { c.RateLimitGitHub = 2 })
	alice := h.CreateUser("alice@test.com")
	bob := h.CreateUser("bob@test.com")

	for i := 0; i < 2; i++ {
		AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", alice, nil), http.StatusConflict, ErrCodeNotConfigured)
	}
	resp := h.Do(http.MethodGet, "/v1/github/repos", alice, nil)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	AssertErrorResponse(t, resp, http.StatusTooManyRequests, ErrCodeRateLimited)

	// Local reads are not limited.
	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/scopes/s_none/github", alice, nil), http.StatusNotFound, ErrCodeNotFound)

	AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", bob, nil), http.StatusConflict, ErrCodeNotConfigured)
}

func TestWithRateLimitDisabled(t *testing.T) {
	h := newTestHarness(t)
	user := h.CreateUser("dev@test.com")
	for i := 0; i < 20; i++ {
		AssertErrorResponse(t, h.Do(http.MethodGet, "/v1/github/repos", user, nil), http.StatusConflict, ErrCodeNotConfigured)
	}
}
