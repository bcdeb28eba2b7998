package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Repository identifies a GitHub repository.
type Repository struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Project is a repository project. Classic projects carry a numeric ID,
// Projects v2 carry a GraphQL node ID.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number,omitempty"`
}

// Milestone is a repository milestone.
type Milestone struct {
	Number int        `json:"number"`
	Title  string     `json:"title"`
	State  string     `json:"state"`
	DueOn  *time.Time `json:"due_on,omitempty"`
}

type repoPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner *struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type projectPayload struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

type milestonePayload struct {
	Number int        `json:"number"`
	Title  string     `json:"title"`
	State  string     `json:"state"`
	DueOn  *time.Time `json:"due_on"`
}

func (m *milestonePayload) toMilestone() *Milestone {
	if m == nil || m.Number == 0 {
		return nil
	}
	title := m.Title
	if title == "" {
		title = fmt.Sprintf("Milestone #%d", m.Number)
	}
	state := m.State
	if state == "" {
		state = "open"
	}
	return &Milestone{Number: m.Number, Title: title, State: state, DueOn: m.DueOn}
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// listStatusError maps statuses for the per-repository list endpoints.
func listStatusError(status int, what string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Status: status, Message: "unauthorized", Err: ErrUnauthorized}
	case http.StatusNotFound:
		return &Error{Status: status, Message: "repository not found", Err: ErrNotFound}
	}
	return statusError(status, "unable to list "+what, false)
}

// ListRepositories returns every repository visible to the token.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]Repository, error) {
	var repos []Repository
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("/user/repos?per_page=%d&page=%d", perPage, page)
		status, raw, err := c.request(ctx, http.MethodGet, endpoint, token, nil, "")
		if err != nil {
			return nil, err
		}
		if status >= 400 {
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				return nil, &Error{Status: status, Message: "unauthorized", Err: ErrUnauthorized}
			}
			return nil, statusError(status, "unable to list repositories", false)
		}
		var payload []repoPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		for _, r := range payload {
			if r.Owner == nil || r.Owner.Login == "" {
				continue
			}
			repos = append(repos, Repository{ID: r.ID, Name: r.Name, Owner: r.Owner.Login})
		}
		if len(payload) < perPage {
			break
		}
	}
	return repos, nil
}

// ListProjects returns the classic projects attached to a repository.
// A 410 means the feature is disabled for the repository and is reported
// as ErrProjectsUnavailable rather than ErrNotFound.
func (c *Client) ListProjects(ctx context.Context, token, owner, repo string) ([]Project, error) {
	var projects []Project
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/projects?per_page=%d&page=%d", repoPath(owner, repo), perPage, page)
		status, raw, err := c.request(ctx, http.MethodGet, endpoint, token, nil, projectsAccept)
		if err != nil {
			return nil, err
		}
		if status == http.StatusGone {
			return nil, &Error{Status: status, Message: "repository projects are not available for this repository", Err: ErrProjectsUnavailable}
		}
		if status >= 400 {
			return nil, listStatusError(status, "projects")
		}
		var payload []projectPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		for _, p := range payload {
			if p.ID == nil {
				continue
			}
			name := p.Name
			if name == "" {
				name = p.Body
			}
			if name == "" {
				name = fmt.Sprintf("Project #%d", *p.ID)
			}
			projects = append(projects, Project{ID: strconv.FormatInt(*p.ID, 10), Name: name})
		}
		if len(payload) < perPage {
			break
		}
	}
	return projects, nil
}

// ListMilestones returns open and closed milestones of a repository.
func (c *Client) ListMilestones(ctx context.Context, token, owner, repo string) ([]Milestone, error) {
	var milestones []Milestone
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/milestones?state=all&per_page=%d&page=%d", repoPath(owner, repo), perPage, page)
		status, raw, err := c.request(ctx, http.MethodGet, endpoint, token, nil, "")
		if err != nil {
			return nil, err
		}
		if status >= 400 {
			return nil, listStatusError(status, "milestones")
		}
		var payload []milestonePayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		for i := range payload {
			if m := payload[i].toMilestone(); m != nil {
				milestones = append(milestones, *m)
			}
		}
		if len(payload) < perPage {
			break
		}
	}
	return milestones, nil
}

// EnsureLabel makes sure a label exists, creating it when absent. A 422 on
// create means someone else created it concurrently and counts as success.
func (c *Client) EnsureLabel(ctx context.Context, token, owner, repo, name string) error {
	endpoint := repoPath(owner, repo) + "/labels/" + url.PathEscape(name)
	status, _, err := c.request(ctx, http.MethodGet, endpoint, token, nil, "")
	if err != nil {
		return err
	}
	switch {
	case status < 300:
		return nil
	case status == http.StatusNotFound:
	default:
		return statusError(status, fmt.Sprintf("unable to read label '%s'", name), false)
	}

	body := map[string]string{"name": name, "color": labelColor}
	status, _, err = c.request(ctx, http.MethodPost, repoPath(owner, repo)+"/labels", token, body, "")
	if err != nil {
		return err
	}
	if status < 300 || status == http.StatusUnprocessableEntity {
		return nil
	}
	return statusError(status, fmt.Sprintf("unable to create label '%s'", name), false)
}

// EnsureLabels ensures every distinct non-blank label exists.
func (c *Client) EnsureLabels(ctx context.Context, token, owner, repo string, labels []string) error {
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		if err := c.EnsureLabel(ctx, token, owner, repo, l); err != nil {
			return err
		}
	}
	return nil
}
