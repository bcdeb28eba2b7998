// Package githubtest provides an in-memory GitHub API for tests. It speaks
// the REST and GraphQL subset used by package github and records every call.
package githubtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Issue is the fake server's view of an issue.
type Issue struct {
	ID        int64
	NodeID    string
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	Milestone int
	Comments  []string
}

// Milestone is a fake repository milestone.
type Milestone struct {
	Number int
	Title  string
	State  string
	DueOn  *time.Time
}

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

type repo struct {
	id         int64
	owner      string
	name       string
	labels     map[string]bool
	issues     map[int]*Issue
	milestones []Milestone
	projects   []int64
	projectsV2 []string
}

// Server is a fake GitHub. Token, when set, is the only accepted bearer token.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	Token    string
	repos    map[string]*repo
	nextID   int64
	calls    []Call
	failures map[string]int
	gqlFail  string
	items    map[string]map[string]bool
	cards    map[int64]map[int64]bool
	gone     map[string]bool
}

// NewServer starts a fake GitHub accepting token. Close it with t.Cleanup.
func NewServer(token string) *Server {
	s := &Server{
		Token:    token,
		repos:    make(map[string]*repo),
		nextID:   1000,
		failures: make(map[string]int),
		items:    make(map[string]map[string]bool),
		cards:    make(map[int64]map[int64]bool),
		gone:     make(map[string]bool),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// GraphQLURL is the GraphQL endpoint of the fake.
func (s *Server) GraphQLURL() string { return s.URL + "/graphql" }

func key(owner, name string) string { return strings.ToLower(owner + "/" + name) }

// AddRepo registers a repository and returns its numeric id.
func (s *Server) AddRepo(owner, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.repos[key(owner, name)] = &repo{
		id:     s.nextID,
		owner:  owner,
		name:   name,
		labels: make(map[string]bool),
		issues: make(map[int]*Issue),
	}
	return s.nextID
}

// AddMilestone registers a milestone on a repository.
func (s *Server) AddMilestone(owner, name string, m Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.State == "" {
		m.State = "open"
	}
	r := s.repos[key(owner, name)]
	r.milestones = append(r.milestones, m)
}

// AddClassicProject registers a classic project with one column.
func (s *Server) AddClassicProject(owner, name string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[key(owner, name)]
	r.projects = append(r.projects, id)
	s.cards[id] = make(map[int64]bool)
}

// AddProjectV2 registers a Projects v2 board linked to a repository.
func (s *Server) AddProjectV2(owner, name, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[key(owner, name)]
	r.projectsV2 = append(r.projectsV2, nodeID)
	s.items[nodeID] = make(map[string]bool)
}

// SetToken changes the accepted bearer token, simulating a revoked one.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Token = token
}

// SetProjectsGone makes the classic projects listing answer 410.
func (s *Server) SetProjectsGone(owner, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone[key(owner, name)] = true
}

// AddLabel pre-creates a label.
func (s *Server) AddLabel(owner, name, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[key(owner, name)].labels[label] = true
}

// Labels returns the sorted label names of a repository.
func (s *Server) Labels(owner, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for l := range s.repos[key(owner, name)].labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// PutIssue inserts or replaces an issue, assigning ids when zero.
func (s *Server) PutIssue(owner, name string, issue Issue) *Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[key(owner, name)]
	if issue.ID == 0 {
		s.nextID++
		issue.ID = s.nextID
	}
	if issue.NodeID == "" {
		issue.NodeID = fmt.Sprintf("I_%d", issue.ID)
	}
	if issue.Number == 0 {
		issue.Number = len(r.issues) + 1
	}
	if issue.State == "" {
		issue.State = "open"
	}
	cp := issue
	r.issues[issue.Number] = &cp
	return &cp
}

// Issue returns a copy of an issue, or nil.
func (s *Server) Issue(owner, name string, number int) *Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	iss := s.repos[key(owner, name)].issues[number]
	if iss == nil {
		return nil
	}
	cp := *iss
	cp.Labels = append([]string(nil), iss.Labels...)
	return &cp
}

// DeleteIssue removes an issue so later reads answer 404.
func (s *Server) DeleteIssue(owner, name string, number int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos[key(owner, name)].issues, number)
}

// ProjectItems returns the content node ids attached to a v2 project.
func (s *Server) ProjectItems(projectID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.items[projectID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Fail makes requests matching method and exact path answer status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// FailGraphQL makes every GraphQL request answer with an error message.
func (s *Server) FailGraphQL(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gqlFail = message
}

// Calls returns every recorded call.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls matching method and path.
func (s *Server) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"login": "octo"})
	})
	mux.HandleFunc("GET /user/repos", s.handleListRepos)
	mux.HandleFunc("GET /repos/{owner}/{repo}/labels/{name}", s.handleGetLabel)
	mux.HandleFunc("POST /repos/{owner}/{repo}/labels", s.handleCreateLabel)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues", s.handleCreateIssue)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}", s.handleGetIssue)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/{number}", s.handleUpdateIssue)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", s.handleComment)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/issues/{number}/labels/{name}", s.handleRemoveLabel)
	mux.HandleFunc("GET /repos/{owner}/{repo}/milestones", s.handleListMilestones)
	mux.HandleFunc("GET /repos/{owner}/{repo}/projects", s.handleListProjects)
	mux.HandleFunc("GET /projects/{id}/columns", s.handleListColumns)
	mux.HandleFunc("POST /projects/columns/{id}/cards", s.handleCreateCard)
	mux.HandleFunc("POST /graphql", s.handleGraphQL)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &body)
			}
			r.Body = io.NopCloser(strings.NewReader(string(raw)))
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body})
		status, failing := s.failures[r.Method+" "+r.URL.Path]
		token := s.Token
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		if failing {
			writeJSON(w, status, map[string]string{"message": "injected failure"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) repoFor(w http.ResponseWriter, r *http.Request) *repo {
	rp := s.repos[key(r.PathValue("owner"), r.PathValue("repo"))]
	if rp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
	return rp
}

func (s *Server) issueJSON(rp *repo, iss *Issue) map[string]any {
	labels := make([]map[string]string, 0, len(iss.Labels))
	for _, l := range iss.Labels {
		labels = append(labels, map[string]string{"name": l})
	}
	out := map[string]any{
		"id":       iss.ID,
		"node_id":  iss.NodeID,
		"number":   iss.Number,
		"title":    iss.Title,
		"body":     iss.Body,
		"html_url": fmt.Sprintf("https://github.com/%s/%s/issues/%d", rp.owner, rp.name, iss.Number),
		"state":    iss.State,
		"labels":   labels,
	}
	if iss.Milestone != 0 {
		m := map[string]any{"number": iss.Milestone, "title": fmt.Sprintf("Milestone #%d", iss.Milestone), "state": "open"}
		for _, ms := range rp.milestones {
			if ms.Number == iss.Milestone {
				m["title"] = ms.Title
				m["state"] = ms.State
				if ms.DueOn != nil {
					m["due_on"] = ms.DueOn.UTC().Format(time.RFC3339)
				}
			}
		}
		out["milestone"] = m
	}
	return out
}

func page(r *http.Request) (int, int) {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if p < 1 {
		p = 1
	}
	per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if per < 1 {
		per = 30
	}
	return p, per
}

func window(n, p, per int) (int, int) {
	start := (p - 1) * per
	if start > n {
		start = n
	}
	end := start + per
	if end > n {
		end = n
	}
	return start, end
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*repo
	for _, rp := range s.repos {
		all = append(all, rp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	p, per := page(r)
	start, end := window(len(all), p, per)
	out := make([]map[string]any, 0, end-start)
	for _, rp := range all[start:end] {
		out = append(out, map[string]any{"id": rp.id, "name": rp.name, "owner": map[string]string{"login": rp.owner}})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repoFor(w, r)
	if rp == nil {
		return
	}
	name := r.PathValue("name")
	if !rp.labels[name] {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repoFor(w, r)
	if rp == nil {
		return
	}
	if rp.labels[body.Name] {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed", "code": "already_exists"})
		return
	}
	rp.labels[body.Name] = true
	writeJSON(w, http.StatusCreated, map[string]string{"name": body.Name, "color": body.Color})
}

type issueBody struct {
	Title     *string         `json:"title"`
	Body      *string         `json:"body"`
	Labels    *[]string       `json:"labels"`
	State     *string         `json:"state"`
	Milestone json.RawMessage `json:"milestone"`
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var body issueBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repoFor(w, r)
	if rp == nil {
		return
	}
	s.nextID++
	iss := &Issue{
		ID:     s.nextID,
		NodeID: fmt.Sprintf("I_%d", s.nextID),
		Number: len(rp.issues) + 1,
		State:  "open",
	}
	for rp.issues[iss.Number] != nil {
		iss.Number++
	}
	applyIssueBody(iss, body)
	rp.issues[iss.Number] = iss
	writeJSON(w, http.StatusCreated, s.issueJSON(rp, iss))
}

func applyIssueBody(iss *Issue, body issueBody) {
	if body.Title != nil {
		iss.Title = *body.Title
	}
	if body.Body != nil {
		iss.Body = *body.Body
	}
	if body.Labels != nil {
		iss.Labels = append([]string(nil), (*body.Labels)...)
	}
	if body.State != nil {
		iss.State = *body.State
	}
	if len(body.Milestone) > 0 {
		var n *int
		_ = json.Unmarshal(body.Milestone, &n)
		if n == nil {
			iss.Milestone = 0
		} else {
			iss.Milestone = *n
		}
	}
}

func (s *Server) issueFor(w http.ResponseWriter, r *http.Request) (*repo, *Issue) {
	rp := s.repoFor(w, r)
	if rp == nil {
		return nil, nil
	}
	n, _ := strconv.Atoi(r.PathValue("number"))
	iss := rp.issues[n]
	if iss == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil, nil
	}
	return rp, iss
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, iss := s.issueFor(w, r)
	if iss == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.issueJSON(rp, iss))
}

func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var body issueBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, iss := s.issueFor(w, r)
	if iss == nil {
		return
	}
	applyIssueBody(iss, body)
	writeJSON(w, http.StatusOK, s.issueJSON(rp, iss))
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body string `json:"body"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, iss := s.issueFor(w, r)
	if iss == nil {
		return
	}
	iss.Comments = append(iss.Comments, body.Body)
	writeJSON(w, http.StatusCreated, map[string]string{"body": body.Body})
}

func (s *Server) handleRemoveLabel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, iss := s.issueFor(w, r)
	if iss == nil {
		return
	}
	name := r.PathValue("name")
	kept := iss.Labels[:0]
	found := false
	for _, l := range iss.Labels {
		if l == name {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	iss.Labels = kept
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Label does not exist"})
		return
	}
	out := make([]map[string]string, 0, len(kept))
	for _, l := range kept {
		out = append(out, map[string]string{"name": l})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repoFor(w, r)
	if rp == nil {
		return
	}
	p, per := page(r)
	start, end := window(len(rp.milestones), p, per)
	out := make([]map[string]any, 0, end-start)
	for _, m := range rp.milestones[start:end] {
		entry := map[string]any{"number": m.Number, "title": m.Title, "state": m.State}
		if m.DueOn != nil {
			entry["due_on"] = m.DueOn.UTC().Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp := s.repoFor(w, r)
	if rp == nil {
		return
	}
	if s.gone[key(rp.owner, rp.name)] {
		writeJSON(w, http.StatusGone, map[string]string{"message": "Projects are disabled for this repository"})
		return
	}
	p, per := page(r)
	start, end := window(len(rp.projects), p, per)
	out := make([]map[string]any, 0, end-start)
	for _, id := range rp.projects[start:end] {
		out = append(out, map[string]any{"id": id, "name": fmt.Sprintf("Board %d", id)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{{"id": id*10 + 1, "name": "To do"}})
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentID int64 `json:"content_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	columnID, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	projectID := (columnID - 1) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	cards, ok := s.cards[projectID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if cards[body.ContentID] {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Project already has the associated issue"})
		return
	}
	cards[body.ContentID] = true
	writeJSON(w, http.StatusCreated, map[string]any{"id": body.ContentID})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gqlFail != "" {
		writeJSON(w, http.StatusOK, map[string]any{"errors": []map[string]string{{"message": s.gqlFail}}})
		return
	}

	str := func(k string) string { v, _ := req.Variables[k].(string); return v }

	switch {
	case strings.Contains(req.Query, "addProjectV2ItemById"):
		items, ok := s.items[str("projectId")]
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"errors": []map[string]string{{"type": "NOT_FOUND", "message": "Could not resolve to a node"}}})
			return
		}
		content := str("contentId")
		if items[content] {
			writeJSON(w, http.StatusOK, map[string]any{"errors": []map[string]string{{"message": "Content already exists in this project"}}})
			return
		}
		items[content] = true
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"addProjectV2ItemById": map[string]any{"item": map[string]string{"id": "PVTI_" + content}},
		}})
	case strings.Contains(req.Query, "projectsV2"):
		rp := s.repos[key(str("owner"), str("name"))]
		if rp == nil {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"repository": nil}})
			return
		}
		nodes := make([]map[string]any, 0, len(rp.projectsV2))
		for i, id := range rp.projectsV2 {
			nodes = append(nodes, map[string]any{"id": id, "title": "Roadmap " + id, "number": i + 1})
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"repository": map[string]any{
			"projectsV2": map[string]any{
				"nodes":    nodes,
				"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
			},
		}}})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"errors": []map[string]string{{"message": "unsupported query"}}})
	}
}
