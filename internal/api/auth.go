package api

import (
	"encoding/json"
	"net/http"
)

// SetTokenRequest is the JSON body for PUT /v1/me/github-token.
type SetTokenRequest struct {
	Token string `json:"token"`
}

// handleSetToken handles PUT /v1/me/github-token.
func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req SetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	if err := s.engine.SetToken(r.Context(), user.ID, req.Token); err != nil {
		s.writeEngineError(w, r, "set github token", err)
		return
	}
	logFor(r.Context()).Info("github token configured")
	writeJSON(w, http.StatusOK, map[string]bool{"github_enabled": true})
}

// handleClearToken handles DELETE /v1/me/github-token.
func (s *Server) handleClearToken(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if err := s.engine.ClearToken(r.Context(), user.ID); err != nil {
		s.writeEngineError(w, r, "clear github token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
