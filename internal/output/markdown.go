package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	descriptionWidth    = 100
	minDescriptionWidth = 20
)

// TerminalWidth reports the width of stdout, then $COLUMNS, then fallback
// (80 when fallback is not positive).
func TerminalWidth(fallback int) int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	if fallback <= 0 {
		return 80
	}
	return fallback
}

// RenderDescription renders a task description as GitHub-flavored markdown
// for the terminal. Descriptions become issue bodies verbatim, so they are
// rendered the way GitHub would show them: emoji shortcodes expanded and
// CRLF line endings tolerated. width <= 0 uses the terminal width, capped
// for readability.
func RenderDescription(text string, width int) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width <= 0 {
		width = min(TerminalWidth(descriptionWidth), descriptionWidth)
	}
	width = max(width, minDescriptionWidth)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithEmoji(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}
