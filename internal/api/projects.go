package api

import (
	"net/http"

	"github.com/marcus/scopes/internal/github"
)

// handleListRepos handles GET /v1/github/repos.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	repos, err := s.engine.Repositories(r.Context(), user.ID)
	if err != nil {
		s.writeEngineError(w, r, "list repositories", err)
		return
	}
	if repos == nil {
		repos = []github.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

// handleListProjects handles GET /v1/github/repos/{owner}/{repo}/projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	projects, err := s.engine.Projects(r.Context(), user.ID, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeEngineError(w, r, "list projects", err)
		return
	}
	if projects == nil {
		projects = []github.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleListMilestones handles GET /v1/github/repos/{owner}/{repo}/milestones.
func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	milestones, err := s.engine.Milestones(r.Context(), user.ID, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeEngineError(w, r, "list milestones", err)
		return
	}
	if milestones == nil {
		milestones = []github.Milestone{}
	}
	writeJSON(w, http.StatusOK, milestones)
}

// handleRefresh handles POST /v1/github/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	s.metrics.RecordRefresh()
	report, err := s.engine.BulkRefresh(r.Context(), user.ID)
	if report != nil {
		s.metrics.RecordUnlinked(int64(report.Unlinked))
	}
	if err != nil {
		s.writeEngineError(w, r, "bulk refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
