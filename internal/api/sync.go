package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/marcus/scopes/internal/syncer"
)

// MilestoneRequest is the JSON body for PATCH /v1/tasks/{id}/github/milestone.
// A null or absent milestone_number clears the milestone.
type MilestoneRequest struct {
	MilestoneNumber *int `json:"milestone_number"`
}

// TagRequest is the JSON body for POST /v1/tasks/{id}/tags.
type TagRequest struct {
	Name string `json:"name"`
}

// writeResult writes a sync operation result and counts unlinks.
func (s *Server) writeResult(w http.ResponseWriter, status int, res *syncer.Result) {
	if res.Unlinked {
		s.metrics.RecordUnlinked(1)
	}
	writeJSON(w, status, resultResponse(res))
}

// handleGetTask handles GET /v1/tasks/{id}/github.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	st, err := s.engine.DescribeTask(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "describe task", err)
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse(st))
}

// handleCreateIssue handles POST /v1/tasks/{id}/github/issue.
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.CreateIssueForTask(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "create issue", err)
		return
	}
	s.metrics.RecordIssueCreated()
	s.writeResult(w, http.StatusCreated, res)
}

// handleSyncTask handles POST /v1/tasks/{id}/github/sync.
func (s *Server) handleSyncTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.SyncFromRemote(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "sync from github", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handlePushLabels handles POST /v1/tasks/{id}/github/labels.
func (s *Server) handlePushLabels(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.PushLabelUpdate(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "push labels", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handleUpdateMilestone handles PATCH /v1/tasks/{id}/github/milestone.
func (s *Server) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req MilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.MilestoneNumber != nil && *req.MilestoneNumber <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "milestone_number must be positive")
		return
	}

	res, err := s.engine.UpdateMilestone(r.Context(), r.PathValue("id"), user.ID, req.MilestoneNumber)
	if err != nil {
		s.writeEngineError(w, r, "update milestone", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handleToggle handles POST /v1/tasks/{id}/toggle.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.ToggleCompletion(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "toggle completion", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handleAddTag handles POST /v1/tasks/{id}/tags.
func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	res, err := s.engine.AddTag(r.Context(), r.PathValue("id"), user.ID, req.Name)
	if err != nil {
		s.writeEngineError(w, r, "add tag", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handleRemoveTag handles DELETE /v1/tasks/{id}/tags/{name}.
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.RemoveTag(r.Context(), r.PathValue("id"), user.ID, r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, r, "remove tag", err)
		return
	}
	s.writeResult(w, http.StatusOK, res)
}

// handleDeleteTask handles DELETE /v1/tasks/{id}.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	res, err := s.engine.DeleteTask(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "delete task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":  res.Task.ID,
		"warnings": res.Warnings,
	})
}

// handleSyncLog handles GET /v1/tasks/{id}/sync-log.
func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.engine.SyncLog(r.Context(), r.PathValue("id"), user.ID, limit)
	if err != nil {
		s.writeEngineError(w, r, "list sync log", err)
		return
	}
	resp := make([]SyncLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, SyncLogResponse{
			ID:        e.ID,
			Action:    e.Action,
			Status:    e.Status,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
