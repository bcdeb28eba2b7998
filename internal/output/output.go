// Package output provides styled terminal output helpers (success, error,
// warning, task and sync log formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	stateStyles  = map[string]lipgloss.Style{
		"open":              lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"closed":            lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		store.StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		store.StatusMissing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		store.StatusFailure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeGitHubAuth    = "github_auth_failed"
	ErrCodeGitHubFailure = "github_unavailable"
	ErrCodeDatabaseError = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatState colors an issue state or sync log status.
func FormatState(s string) string {
	style, ok := stateStyles[s]
	if !ok {
		return s
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatTags renders tags in tag color, comma separated.
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return tagStyle.Render(strings.Join(tags, ", "))
}

// FormatIssueRef renders "owner/repo#N" for a linked task config.
func FormatIssueRef(c *store.TaskGitHubConfig) string {
	if !c.HasIssueLink() {
		return ""
	}
	ref := fmt.Sprintf("#%d", *c.IssueNumber)
	if c.RepoOwner != "" && c.RepoName != "" {
		ref = c.RepoOwner + "/" + c.RepoName + ref
	}
	return ref
}

// FormatTaskShort formats a task in one line
func FormatTaskShort(task *store.Task, cfg *store.TaskGitHubConfig) string {
	var parts []string
	parts = append(parts, titleStyle.Render(task.ID))
	if task.Completed {
		parts = append(parts, successStyle.Render("✓"))
	} else {
		parts = append(parts, subtleStyle.Render("○"))
	}
	parts = append(parts, task.Name)
	if ref := FormatIssueRef(cfg); ref != "" {
		parts = append(parts, subtleStyle.Render(ref))
		parts = append(parts, FormatState(cfg.IssueState))
	}
	return strings.Join(parts, "  ")
}

// FormatTaskLong formats a task with its description, tags and GitHub link.
// The description is rendered as markdown when render is true.
func FormatTaskLong(st *syncer.TaskStatus, render bool) string {
	var sb strings.Builder
	task := st.Task

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", task.ID, task.Name)))
	sb.WriteString("\n")
	if task.Completed {
		done := "Completed"
		if task.CompletedAt != nil {
			done += " " + FormatTimeAgo(*task.CompletedAt)
		}
		sb.WriteString(successStyle.Render(done))
	} else {
		sb.WriteString("Open")
	}
	sb.WriteString("\n")

	if len(st.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Tags: %s\n", FormatTags(st.Tags)))
	}

	if task.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Description:"))
		sb.WriteString("\n")
		desc := task.Description
		if render {
			if md, err := RenderDescription(desc, 0); err == nil && md != "" {
				desc = md
			}
		}
		sb.WriteString(desc)
		sb.WriteString("\n")
	}

	sb.WriteString(SectionHeader("github"))
	cfg := st.Config
	switch {
	case cfg.HasIssueLink():
		sb.WriteString(fmt.Sprintf("  Issue: %s %s\n", FormatIssueRef(cfg), FormatState(cfg.IssueState)))
		if cfg.IssueURL != "" {
			sb.WriteString(fmt.Sprintf("  URL: %s\n", cfg.IssueURL))
		}
		if cfg.ProjectName != "" {
			sb.WriteString(fmt.Sprintf("  Project: %s\n", cfg.ProjectName))
		}
		if cfg.MilestoneNumber != nil {
			sb.WriteString(fmt.Sprintf("  Milestone: %s", cfg.MilestoneTitle))
			if cfg.MilestoneDueOn != nil {
				sb.WriteString(subtleStyle.Render(" due " + cfg.MilestoneDueOn.Format("2006-01-02")))
			}
			sb.WriteString("\n")
		}
	case st.CanLink:
		sb.WriteString(subtleStyle.Render("  Not linked. Run `scopes task link " + task.ID + "` to create an issue."))
		sb.WriteString("\n")
	default:
		sb.WriteString(subtleStyle.Render("  GitHub integration is not configured for this scope."))
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatScope formats a scope's resolved GitHub configuration.
func FormatScope(st *syncer.ScopeStatus) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", st.Scope.ID, st.Scope.Name)))
	sb.WriteString("\n")

	role := "collaborator"
	if st.IsOwner {
		role = "owner"
	}
	sb.WriteString(fmt.Sprintf("Role: %s | Label: %s\n", role, tagStyle.Render(st.Label)))

	eff := st.State.EffectiveConfig
	if !st.State.Enabled() {
		sb.WriteString(subtleStyle.Render("GitHub: disabled"))
		sb.WriteString("\n")
		if st.State.DetachedFromOwner {
			sb.WriteString(warningStyle.Render("Detached: the owner disabled integration for this scope"))
			sb.WriteString("\n")
		}
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("GitHub: %s", successStyle.Render(eff.RepoFullName())))
	if st.State.LinkedToOwner {
		sb.WriteString(subtleStyle.Render(" (shared with owner)"))
	}
	sb.WriteString("\n")
	if eff.ProjectName != "" {
		sb.WriteString(fmt.Sprintf("Project: %s\n", eff.ProjectName))
	}
	if eff.MilestoneNumber != nil {
		sb.WriteString(fmt.Sprintf("Milestone: %s\n", eff.MilestoneTitle))
	}
	return sb.String()
}

// FormatLogLine formats one sync log entry for plain output, truncating the
// message so the line fits width columns. width <= 0 disables truncation.
func FormatLogLine(e *store.SyncLogEntry, width int) string {
	prefix := fmt.Sprintf("%s  %-18s %s  ", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Action, FormatState(e.Status))
	if width <= 0 {
		return prefix + e.Message
	}
	room := width - ansi.StringWidth(prefix)
	if room < 10 {
		room = 10
	}
	return prefix + Truncate(e.Message, room)
}

// Truncate shortens s to width display columns, ending in "…" when cut.
func Truncate(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nGITHUB:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
