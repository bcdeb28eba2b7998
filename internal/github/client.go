// Package github is a thin, stateless client for the GitHub REST and GraphQL
// APIs. Every call takes the caller's bearer token; there is no retry and no
// caching. Failures are reported as *Error values that classify the HTTP
// status so callers can tell an invalid credential from a deleted issue.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	// DefaultGraphQLURL is the public GitHub GraphQL endpoint.
	DefaultGraphQLURL = "https://api.github.com/graphql"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 20 * time.Second

	// AppLabel is attached to every issue the application creates or edits.
	AppLabel = "ProjectsManager"

	userAgent      = "ProjectsManager-Integration"
	defaultAccept  = "application/vnd.github+json"
	projectsAccept = "application/vnd.github+json, application/vnd.github.inertia-preview+json"
	labelColor     = "0f6fff"
	perPage        = 100
	maxLoggedBody  = 500
)

// Sentinel errors for the failure classes callers act on.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissing             = errors.New("issue not found")
	ErrNotFound            = errors.New("not found")
	ErrProjectsUnavailable = errors.New("repository projects are not available")
)

// Error is returned by every failed call. Status is zero for transport
// failures. Err holds one of the sentinels above, or the transport error.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("github: %s (HTTP %d)", e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("github: %s: %v", e.Message, e.Err)
	}
	return "github: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 401/403 from GitHub.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsMissing reports whether err means the linked issue is gone (404/410).
func IsMissing(err error) bool { return errors.Is(err, ErrMissing) }

// Client talks to GitHub. The zero value is not usable; use New.
type Client struct {
	BaseURL    string
	GraphQLURL string
	HTTP       *http.Client
	// Log receives failed calls. Nil uses slog.Default.
	Log *slog.Logger
}

// New creates a client. Empty URLs fall back to the public endpoints and a
// non-positive timeout falls back to DefaultTimeout.
func New(baseURL, graphqlURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if graphqlURL == "" {
		graphqlURL = DefaultGraphQLURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		GraphQLURL: graphqlURL,
		HTTP:       &http.Client{Timeout: timeout},
	}
}

// TestConnection reports whether the token can read the authenticated user.
func (c *Client) TestConnection(ctx context.Context, token string) (bool, error) {
	status, _, err := c.request(ctx, http.MethodGet, "/user", token, nil, "")
	if err != nil {
		return false, err
	}
	return status >= 200 && status < 300, nil
}

// statusError classifies a failed response. missingIssue selects the
// issue-specific mapping where 404 and 410 both mean the issue is gone.
func statusError(status int, message string, missingIssue bool) error {
	if status < 400 {
		return nil
	}
	e := &Error{Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Err = ErrUnauthorized
	case missingIssue && (status == http.StatusNotFound || status == http.StatusGone):
		e.Err = ErrMissing
	case status == http.StatusNotFound:
		e.Err = ErrNotFound
	}
	return e
}

// request performs one REST call and returns the status and raw body.
// Only transport failures produce an error; status handling is the caller's.
func (c *Client) request(ctx context.Context, method, endpoint, token string, payload any, accept string) (int, []byte, error) {
	url := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		url = c.BaseURL + endpoint
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if accept == "" {
		accept = defaultAccept
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, &Error{Message: "unable to reach GitHub", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &Error{Message: "read response", Err: err}
	}

	c.logFailure(ctx, method, url, resp.StatusCode, raw)
	return resp.StatusCode, raw, nil
}

// logFailure records a response with status >= 400. 404, 410 and 422 are
// routine (label lookups, deleted issues, existing labels) and go to debug.
func (c *Client) logFailure(ctx context.Context, method, url string, status int, raw []byte) {
	if status < 400 {
		return
	}
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelWarn
	switch status {
	case http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		level = slog.LevelDebug
	}
	text := string(raw)
	if len(text) > maxLoggedBody {
		text = text[:maxLoggedBody]
	}
	log.Log(ctx, level, "github api call failed",
		"method", method,
		"url", url,
		"status", status,
		"body", text,
	)
}

// decode unmarshals a successful body into out. Empty bodies are ignored.
func decode(raw []byte, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
