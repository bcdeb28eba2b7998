package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter counts GitHub-bound requests per user in fixed one-minute
// windows. Each request through it can fan out into several GitHub calls,
// so the limit protects the user's token quota as much as the server.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	used  int
}

// NewRateLimiter creates a RateLimiter. Call Run to evict idle users.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

// Run evicts idle windows every interval until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// Take consumes one request for userID. When the user is over limit it
// returns false and the time until their window resets.
func (rl *RateLimiter) Take(userID string, limit int) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows[userID]
	if w == nil || now.Sub(w.start) >= rateWindow {
		rl.windows[userID] = &window{start: now, used: 1}
		return true, 0
	}
	if w.used >= limit {
		return false, w.start.Add(rateWindow).Sub(now)
	}
	w.used++
	return true, 0
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-2 * rateWindow)
	for id, w := range rl.windows {
		if w.start.Before(cutoff) {
			delete(rl.windows, id)
		}
	}
}

// withRateLimit caps GitHub-bound requests per user per minute.
func (s *Server) withRateLimit(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || s.config.RateLimitGitHub <= 0 {
			handler(w, r)
			return
		}
		ok, wait := s.rateLimiter.Take(user.ID, s.config.RateLimitGitHub)
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			logFor(r.Context()).Warn("rate limited", "path", r.URL.Path, "retry_after", secs)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many GitHub requests, retry later")
			return
		}
		handler(w, r)
	}
}
