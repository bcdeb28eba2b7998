package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const listProjectsV2Query = `query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    projectsV2(first: 100, after: $cursor) {
      nodes { id title number }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const addProjectV2ItemMutation = `mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// graphQL posts a query and decodes data into out. GraphQL-level errors are
// returned as *Error with the joined messages so callers can inspect them.
func (c *Client) graphQL(ctx context.Context, token, query string, vars map[string]any, out any) error {
	data, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GraphQLURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Message: "unable to reach GitHub", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: "read response", Err: err}
	}
	c.logFailure(ctx, http.MethodPost, c.GraphQLURL, resp.StatusCode, raw)
	if err := statusError(resp.StatusCode, "graphql request failed", false); err != nil {
		return err
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		ge := &Error{Status: resp.StatusCode, Message: strings.Join(msgs, "; ")}
		for _, e := range gr.Errors {
			if e.Type == "NOT_FOUND" {
				ge.Err = ErrNotFound
			}
			if e.Type == "FORBIDDEN" {
				ge.Err = ErrUnauthorized
			}
		}
		return ge
	}
	if out != nil && len(gr.Data) > 0 {
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return nil
}

// ListProjectsV2 returns the Projects v2 boards linked to a repository.
func (c *Client) ListProjectsV2(ctx context.Context, token, owner, repo string) ([]Project, error) {
	var projects []Project
	var cursor *string
	for {
		var data struct {
			Repository *struct {
				ProjectsV2 struct {
					Nodes []struct {
						ID     string `json:"id"`
						Title  string `json:"title"`
						Number int    `json:"number"`
					} `json:"nodes"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"projectsV2"`
			} `json:"repository"`
		}
		vars := map[string]any{"owner": owner, "name": repo, "cursor": cursor}
		if err := c.graphQL(ctx, token, listProjectsV2Query, vars, &data); err != nil {
			return nil, err
		}
		if data.Repository == nil {
			return nil, &Error{Status: http.StatusNotFound, Message: "repository not found", Err: ErrNotFound}
		}
		for _, n := range data.Repository.ProjectsV2.Nodes {
			name := n.Title
			if name == "" {
				name = fmt.Sprintf("Project #%d", n.Number)
			}
			projects = append(projects, Project{ID: n.ID, Name: name, Number: n.Number})
		}
		page := data.Repository.ProjectsV2.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		end := page.EndCursor
		cursor = &end
	}
	return projects, nil
}

// isClassicProjectID reports whether id is a numeric classic project id.
func isClassicProjectID(id string) bool {
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// AddIssueToProject attaches an issue to a project. Projects v2 boards use
// the addProjectV2ItemById mutation; classic projects get a card in their
// first column. Re-adding an issue that is already present succeeds.
func (c *Client) AddIssueToProject(ctx context.Context, token, projectID, issueNodeID string, issueID int64) error {
	if isClassicProjectID(projectID) {
		return c.addIssueToClassicProject(ctx, token, projectID, issueID)
	}
	if issueNodeID == "" {
		return &Error{Message: "issue node id is required for projects v2"}
	}

	vars := map[string]any{"projectId": projectID, "contentId": issueNodeID}
	err := c.graphQL(ctx, token, addProjectV2ItemMutation, vars, nil)
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) && strings.Contains(strings.ToLower(ge.Message), "already exists") {
		return nil
	}
	return err
}

func (c *Client) addIssueToClassicProject(ctx context.Context, token, projectID string, issueID int64) error {
	status, raw, err := c.request(ctx, http.MethodGet, "/projects/"+projectID+"/columns", token, nil, projectsAccept)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return &Error{Status: status, Message: "project not found", Err: ErrNotFound}
	}
	if err := statusError(status, "unable to list project columns", false); err != nil {
		return err
	}
	var columns []struct {
		ID int64 `json:"id"`
	}
	if err := decode(raw, &columns); err != nil {
		return err
	}
	if len(columns) == 0 {
		return &Error{Status: status, Message: "project has no columns"}
	}
	if columns[0].ID == 0 {
		return &Error{Status: status, Message: "project column identifier is missing"}
	}

	endpoint := fmt.Sprintf("/projects/columns/%d/cards", columns[0].ID)
	body := map[string]any{"content_id": issueID, "content_type": "Issue"}
	status, _, err = c.request(ctx, http.MethodPost, endpoint, token, body, projectsAccept)
	if err != nil {
		return err
	}
	if status == http.StatusUnprocessableEntity {
		return nil
	}
	if status == http.StatusNotFound {
		return &Error{Status: status, Message: "project column not found", Err: ErrNotFound}
	}
	return statusError(status, "unable to add issue to project", false)
}
