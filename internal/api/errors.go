package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcus/scopes/internal/syncer"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeInternal          = "internal"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeValidation        = "validation_failed"
	ErrCodeGitHubAuthFailed  = "github_auth_failed"
	ErrCodeGitHubUnavailable = "github_unavailable"
	ErrCodeNotConfigured     = "github_not_configured"
	ErrCodeIssueOpen         = "issue_open"
	ErrCodeNotLinked         = "not_linked"
	ErrCodeAlreadyLinked     = "already_linked"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: APIError{Code: code, Message: message},
	}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// errorStatus maps an engine error to a status, code and client message.
// Remote failures carry a generic message; details stay in the server log.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, syncer.ErrAuthFailed):
		return http.StatusUnauthorized, ErrCodeGitHubAuthFailed, "GitHub rejected the stored token; configure a new one"
	case errors.Is(err, syncer.ErrCommunication):
		return http.StatusBadGateway, ErrCodeGitHubUnavailable, syncer.ErrCommunication.Error()
	case errors.Is(err, syncer.ErrNotConfigured):
		return http.StatusConflict, ErrCodeNotConfigured, syncer.ErrNotConfigured.Error()
	case errors.Is(err, syncer.ErrOpenIssue):
		return http.StatusConflict, ErrCodeIssueOpen, syncer.ErrOpenIssue.Error()
	case errors.Is(err, syncer.ErrNotLinked):
		return http.StatusConflict, ErrCodeNotLinked, syncer.ErrNotLinked.Error()
	case errors.Is(err, syncer.ErrAlreadyLinked):
		return http.StatusConflict, ErrCodeAlreadyLinked, syncer.ErrAlreadyLinked.Error()
	case errors.Is(err, syncer.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case syncer.IsValidationError(err):
		return http.StatusUnprocessableEntity, ErrCodeValidation, err.Error()
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
}

// writeEngineError logs err and writes the mapped error response.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := errorStatus(err)
	l := logFor(r.Context())
	switch {
	case status >= 500:
		l.Error(op, "err", err)
	case syncer.IsRemoteError(err):
		l.Warn(op, "err", err)
	default:
		l.Debug(op, "err", err)
	}
	if syncer.IsRemoteError(err) {
		s.metrics.RecordRemoteFailure()
	}
	writeError(w, status, code, msg)
}
