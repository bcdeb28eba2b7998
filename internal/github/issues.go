package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Issue is the subset of a GitHub issue the application mirrors.
type Issue struct {
	ID        int64      `json:"id"`
	NodeID    string     `json:"node_id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	State     string     `json:"state"`
	Labels    []string   `json:"labels"`
	Milestone *Milestone `json:"milestone,omitempty"`
}

type issuePayload struct {
	ID      int64   `json:"id"`
	NodeID  string  `json:"node_id"`
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    *string `json:"body"`
	HTMLURL string  `json:"html_url"`
	State   string  `json:"state"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Milestone *milestonePayload `json:"milestone"`
}

func (p *issuePayload) toIssue() *Issue {
	issue := &Issue{
		ID:        p.ID,
		NodeID:    p.NodeID,
		Number:    p.Number,
		Title:     p.Title,
		URL:       p.HTMLURL,
		State:     p.State,
		Labels:    make([]string, 0, len(p.Labels)),
		Milestone: p.Milestone.toMilestone(),
	}
	if p.Body != nil {
		issue.Body = *p.Body
	}
	if issue.State == "" {
		issue.State = "open"
	}
	for _, l := range p.Labels {
		if l.Name != "" {
			issue.Labels = append(issue.Labels, l.Name)
		}
	}
	return issue
}

// IssueRequest describes an issue to create.
type IssueRequest struct {
	Title     string
	Body      string
	Labels    []string
	Milestone *int
}

// MilestoneUpdate is a tri-state milestone patch: not supplied, set to a
// number, or explicitly cleared.
type MilestoneUpdate struct {
	set    bool
	number *int
}

// SetMilestone assigns the issue to milestone n.
func SetMilestone(n int) MilestoneUpdate { return MilestoneUpdate{set: true, number: &n} }

// ClearMilestone removes the issue from its milestone.
func ClearMilestone() MilestoneUpdate { return MilestoneUpdate{set: true} }

// MilestoneTo returns SetMilestone(*n) or ClearMilestone() when n is nil.
func MilestoneTo(n *int) MilestoneUpdate {
	if n == nil {
		return ClearMilestone()
	}
	return SetMilestone(*n)
}

// IsSet reports whether the update carries a milestone field.
func (m MilestoneUpdate) IsSet() bool { return m.set }

// Number returns the target milestone, nil for an explicit clear.
func (m MilestoneUpdate) Number() *int { return m.number }

// IssueUpdate is a partial issue patch. Only non-nil fields are sent. A
// non-nil empty Labels slice replaces the labels with the app label alone.
type IssueUpdate struct {
	Title     *string
	Body      *string
	Labels    []string
	State     *string
	Milestone MilestoneUpdate
}

// withAppLabel returns the sorted union of labels and AppLabel.
func withAppLabel(labels []string) []string {
	set := map[string]bool{AppLabel: true}
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			set[l] = true
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func issuePath(owner, repo string, number int) string {
	return fmt.Sprintf("%s/issues/%d", repoPath(owner, repo), number)
}

// CreateIssue creates an issue carrying the caller's labels plus AppLabel,
// ensuring every label exists first.
func (c *Client) CreateIssue(ctx context.Context, token, owner, repo string, req IssueRequest) (*Issue, error) {
	labels := withAppLabel(req.Labels)
	if err := c.EnsureLabels(ctx, token, owner, repo, labels); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"title":  req.Title,
		"body":   req.Body,
		"labels": labels,
	}
	if req.Milestone != nil {
		payload["milestone"] = *req.Milestone
	}

	status, raw, err := c.request(ctx, http.MethodPost, repoPath(owner, repo)+"/issues", token, payload, "")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &Error{Status: status, Message: "repository not found", Err: ErrNotFound}
	}
	if err := statusError(status, "unable to create issue", false); err != nil {
		return nil, err
	}

	var p issuePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return p.toIssue(), nil
}

// FetchIssue reads an issue. A deleted or transferred issue yields ErrMissing.
func (c *Client) FetchIssue(ctx context.Context, token, owner, repo string, number int) (*Issue, error) {
	status, raw, err := c.request(ctx, http.MethodGet, issuePath(owner, repo, number), token, nil, "")
	if err != nil {
		return nil, err
	}
	if err := statusError(status, "unable to fetch issue", true); err != nil {
		return nil, err
	}
	var p issuePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return p.toIssue(), nil
}

// UpdateIssue applies a partial patch and returns the updated issue.
func (c *Client) UpdateIssue(ctx context.Context, token, owner, repo string, number int, upd IssueUpdate) (*Issue, error) {
	payload := map[string]any{}
	if upd.Title != nil {
		payload["title"] = *upd.Title
	}
	if upd.Body != nil {
		payload["body"] = *upd.Body
	}
	if upd.Labels != nil {
		labels := withAppLabel(upd.Labels)
		if err := c.EnsureLabels(ctx, token, owner, repo, labels); err != nil {
			return nil, err
		}
		payload["labels"] = labels
	}
	if upd.State != nil {
		payload["state"] = *upd.State
	}
	if upd.Milestone.IsSet() {
		if n := upd.Milestone.Number(); n != nil {
			payload["milestone"] = *n
		} else {
			payload["milestone"] = nil
		}
	}

	status, raw, err := c.request(ctx, http.MethodPatch, issuePath(owner, repo, number), token, payload, "")
	if err != nil {
		return nil, err
	}
	if err := statusError(status, "unable to update issue", true); err != nil {
		return nil, err
	}
	var p issuePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return p.toIssue(), nil
}

// CloseIssue sets the issue state to closed.
func (c *Client) CloseIssue(ctx context.Context, token, owner, repo string, number int) (*Issue, error) {
	state := "closed"
	return c.UpdateIssue(ctx, token, owner, repo, number, IssueUpdate{State: &state})
}

// ReopenIssue sets the issue state to open.
func (c *Client) ReopenIssue(ctx context.Context, token, owner, repo string, number int) (*Issue, error) {
	state := "open"
	return c.UpdateIssue(ctx, token, owner, repo, number, IssueUpdate{State: &state})
}

// CommentOnIssue posts a comment.
func (c *Client) CommentOnIssue(ctx context.Context, token, owner, repo string, number int, body string) error {
	endpoint := issuePath(owner, repo, number) + "/comments"
	status, _, err := c.request(ctx, http.MethodPost, endpoint, token, map[string]string{"body": body}, "")
	if err != nil {
		return err
	}
	return statusError(status, "unable to comment on issue", true)
}

// RemoveLabelFromIssue removes one label and returns the labels that remain.
func (c *Client) RemoveLabelFromIssue(ctx context.Context, token, owner, repo string, number int, label string) ([]string, error) {
	endpoint := issuePath(owner, repo, number) + "/labels/" + url.PathEscape(label)
	status, raw, err := c.request(ctx, http.MethodDelete, endpoint, token, nil, "")
	if err != nil {
		return nil, err
	}
	if err := statusError(status, fmt.Sprintf("unable to remove label '%s' from issue", label), true); err != nil {
		return nil, err
	}
	var payload []struct {
		Name string `json:"name"`
	}
	if err := decode(raw, &payload); err != nil {
		return []string{}, nil
	}
	remaining := make([]string, 0, len(payload))
	for _, l := range payload {
		if l.Name != "" {
			remaining = append(remaining, l.Name)
		}
	}
	return remaining, nil
}
