package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"t"},
	Short:   "Inspect tasks and drive their GitHub issues",
	GroupID: "core",
}

var taskShowCmd = &cobra.Command{
	Use:     "show <task-id>",
	Aliases: []string{"view"},
	Short:   "Show a task and its GitHub issue",
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

		st, err := a.engine.DescribeTask(cmd.Context(), args[0], user)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(taskJSON(st.Task, st.Tags, st.Config, false, nil))
		}
		fmt.Print(output.FormatTaskLong(st, term.IsTerminal(int(os.Stdout.Fd()))))
		return nil
	},
}

// resultAction runs one engine operation on a task and prints its result.
type resultAction func(ctx context.Context, e *syncer.Engine, taskID, userID string, args []string) (*syncer.Result, error)

func taskResultCmd(use, short, long, done string, nargs int, run resultAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(nargs),
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

			res, err := run(cmd.Context(), a.engine, args[0], user, args[1:])
			if err != nil {
				return fail(cmd, err)
			}
			return printResult(cmd, res, done)
		},
	}
}

func printResult(cmd *cobra.Command, res *syncer.Result, done string) error {
	if jsonOutput(cmd) {
		return output.JSON(taskJSON(res.Task, nil, res.Config, res.Unlinked, res.Warnings))
	}
	if res.Unlinked {
		output.Warning("the GitHub issue no longer exists; the task was unlinked")
	} else {
		output.Success("%s", done)
	}
	if res.Task != nil {
		output.Info("%s", output.FormatTaskShort(res.Task, res.Config))
	}
	warn(res.Warnings)
	return nil
}

var taskLinkCmd = taskResultCmd("link <task-id>", "Create a GitHub issue for a task",
	`Create a GitHub issue in the repository configured for the task's scope.

The issue gets the task's tags, the scope label and the application label as
labels, the scope's milestone, and is added to the scope's project.`,
	"Issue created", 1,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, _ []string) (*syncer.Result, error) {
		return e.CreateIssueForTask(ctx, taskID, userID)
	})

var taskPullCmd = taskResultCmd("pull <task-id>", "Refresh a task from its GitHub issue",
	`Copy title, body, state, labels and milestone from the linked GitHub issue.`,
	"Task updated from GitHub", 1,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, _ []string) (*syncer.Result, error) {
		return e.SyncFromRemote(ctx, taskID, userID)
	})

var taskPushCmd = taskResultCmd("push <task-id>", "Push the task's labels to its GitHub issue", "",
	"Labels pushed", 1,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, _ []string) (*syncer.Result, error) {
		return e.PushLabelUpdate(ctx, taskID, userID)
	})

var taskToggleCmd = taskResultCmd("toggle <task-id>", "Complete or reopen a task",
	`Flip a task's completion. A linked issue is closed (with a comment) or
reopened to match.`,
	"Task toggled", 1,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, _ []string) (*syncer.Result, error) {
		return e.ToggleCompletion(ctx, taskID, userID)
	})

var taskMilestoneCmd = taskResultCmd("milestone <task-id> <number|none>", "Set or clear the issue milestone", "",
	"Milestone updated", 2,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, args []string) (*syncer.Result, error) {
		if args[0] == "none" || args[0] == "0" {
			return e.UpdateMilestone(ctx, taskID, userID, nil)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("milestone must be a number or none, got %q", args[0])
		}
		return e.UpdateMilestone(ctx, taskID, userID, &n)
	})

var taskTagCmd = taskResultCmd("tag <task-id> <tag>", "Add a tag and push it as a label", "",
	"Tag added", 2,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, args []string) (*syncer.Result, error) {
		return e.AddTag(ctx, taskID, userID, args[0])
	})

var taskUntagCmd = taskResultCmd("untag <task-id> <tag>", "Remove a tag and its label", "",
	"Tag removed", 2,
	func(ctx context.Context, e *syncer.Engine, taskID, userID string, args []string) (*syncer.Result, error) {
		return e.RemoveTag(ctx, taskID, userID, args[0])
	})

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Long: `Delete a task. Refused while any linked GitHub issue is open; close it
first with "scopes task toggle". The application label is removed from
closed issues.`,
	Args: cobra.ExactArgs(1),
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

		res, err := a.engine.DeleteTask(cmd.Context(), args[0], user)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(map[string]any{"deleted": res.Task.ID, "warnings": res.Warnings})
		}
		output.Success("Deleted %s", res.Task.ID)
		warn(res.Warnings)
		return nil
	},
}

type taskOutput struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Completed bool         `json:"completed"`
	Tags      []string     `json:"tags,omitempty"`
	Issue     *issueOutput `json:"issue,omitempty"`
	Unlinked  bool         `json:"unlinked,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

type issueOutput struct {
	Ref       string `json:"ref"`
	URL       string `json:"url"`
	State     string `json:"state"`
	Milestone string `json:"milestone,omitempty"`
	Project   string `json:"project,omitempty"`
}

func taskJSON(t *store.Task, tags []string, c *store.TaskGitHubConfig, unlinked bool, warnings []string) taskOutput {
	out := taskOutput{Tags: tags, Unlinked: unlinked, Warnings: warnings}
	if t != nil {
		out.ID, out.Name, out.Completed = t.ID, t.Name, t.Completed
	}
	if c.HasIssueLink() {
		out.Issue = &issueOutput{
			Ref:       output.FormatIssueRef(c),
			URL:       c.IssueURL,
			State:     c.IssueState,
			Milestone: c.MilestoneTitle,
			Project:   c.ProjectName,
		}
	}
	return out
}

func init() {
	taskCmd.AddCommand(taskShowCmd, taskLinkCmd, taskPullCmd, taskPushCmd, taskToggleCmd,
		taskMilestoneCmd, taskTagCmd, taskUntagCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
