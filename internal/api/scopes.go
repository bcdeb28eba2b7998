package api

import (
	"encoding/json"
	"net/http"

	"github.com/marcus/scopes/internal/integration"
)

// handleGetScopeConfig handles GET /v1/scopes/{id}/github.
func (s *Server) handleGetScopeConfig(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	st, err := s.engine.DescribeScope(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "describe scope", err)
		return
	}
	writeJSON(w, http.StatusOK, scopeConfigResponse(st))
}

// handlePutScopeConfig handles PUT /v1/scopes/{id}/github.
func (s *Server) handlePutScopeConfig(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req ScopeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	st, err := s.engine.ConfigureScope(r.Context(), r.PathValue("id"), user.ID, integration.Settings{
		Enabled:         req.Enabled,
		RepoID:          req.RepoID,
		RepoOwner:       req.RepoOwner,
		RepoName:        req.RepoName,
		ProjectID:       req.ProjectID,
		ProjectName:     req.ProjectName,
		MilestoneNumber: req.MilestoneNumber,
		MilestoneTitle:  req.MilestoneTitle,
		LabelName:       req.LabelName,
	})
	if err != nil {
		s.writeEngineError(w, r, "configure scope", err)
		return
	}
	writeJSON(w, http.StatusOK, scopeConfigResponse(st))
}

// handleGetEntity handles GET /v1/entities/{kind}/{id}/github.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	ent, err := s.engine.DescribeEntity(r.Context(), r.PathValue("kind"), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "describe entity", err)
		return
	}
	resp := EntityResponse{Kind: ent.Kind, ID: ent.ID}
	if ent.Scope != nil {
		resp.Scope = scopeConfigResponse(ent.Scope)
	}
	if ent.Task != nil {
		resp.Task = taskStatusResponse(ent.Task)
	}
	writeJSON(w, http.StatusOK, resp)
}
