package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var logCmd = &cobra.Command{
	Use:   "log <task-id>",
	Short: "Show the GitHub sync history of a task",
	Long: `Show a task's sync log, newest first.

In a terminal the log opens in an interactive viewer (r reloads, / filters,
q quits). Use --plain, --json or a pipe for line output.`,
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := actingUser()
		if err != nil {
			return fail(cmd, err)
		}
		a, err := openCLI()
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		taskID := args[0]
		load := func(ctx context.Context) ([]store.SyncLogEntry, error) {
			return a.engine.SyncLog(ctx, taskID, user, limit)
		}

		entries, err := load(cmd.Context())
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(entries)
		}

		plain, _ := cmd.Flags().GetBool("plain")
		if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
			width := 0
			if term.IsTerminal(int(os.Stdout.Fd())) {
				width = output.TerminalWidth(0)
			}
			printLog(os.Stdout, entries, width)
			return nil
		}

		m := newLogModel(taskID, entries, func() tea.Msg {
			entries, err := load(context.Background())
			if err != nil {
				return err
			}
			return logLoadedMsg{entries: entries}
		})
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func printLog(w io.Writer, entries []store.SyncLogEntry, width int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No sync activity")
		return
	}
	for i := range entries {
		fmt.Fprintln(w, output.FormatLogLine(&entries[i], width))
	}
}

type logItem struct {
	entry store.SyncLogEntry
}

func (i logItem) Title() string {
	return fmt.Sprintf("%s %s", i.entry.Action, output.FormatState(i.entry.Status))
}

func (i logItem) Description() string {
	return fmt.Sprintf("%s  %s", output.FormatTimeAgo(i.entry.CreatedAt), i.entry.Message)
}

func (i logItem) FilterValue() string { return i.entry.Action + " " + i.entry.Message }

type logLoadedMsg struct {
	entries []store.SyncLogEntry
}

type logKeyMap struct {
	Reload key.Binding
}

// logModel is the interactive sync log viewer.
type logModel struct {
	list   list.Model
	keys   logKeyMap
	reload tea.Cmd
	err    error
}

func logItems(entries []store.SyncLogEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = logItem{entry: e}
	}
	return items
}

func newLogModel(taskID string, entries []store.SyncLogEntry, reload tea.Cmd) logModel {
	keys := logKeyMap{
		Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(logItems(entries), delegate, 0, 0)
	l.Title = "Sync log " + taskID
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	l.SetStatusBarItemName("entry", "entries")
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{keys.Reload} }

	return logModel{list: l, keys: keys, reload: reload}
}

func (m logModel) Init() tea.Cmd { return nil }

func (m logModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil

	case logLoadedMsg:
		m.err = nil
		return m, m.list.SetItems(logItems(msg.entries))

	case error:
		m.err = msg
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() != list.Filtering && key.Matches(msg, m.keys.Reload) {
			return m, m.reload
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m logModel) View() string {
	view := m.list.View()
	if m.err != nil {
		view += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("reload failed: "+m.err.Error())
	}
	return view
}

func init() {
	logCmd.Flags().Int("limit", 50, "Maximum entries to show (0 = all)")
	logCmd.Flags().Bool("plain", false, "Print lines instead of opening the viewer")
	rootCmd.AddCommand(logCmd)
}
