package cmd

import (
	"errors"
	"fmt"

	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/syncer"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Pull every linked task from GitHub",
	Long: `Refresh all of your linked tasks from their GitHub issues, one at a time.

A task whose issue is gone is unlinked. Other per-task failures are reported
and the refresh continues; a rejected token stops it.`,
	GroupID: "github",
	Args:    cobra.NoArgs,
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

		report, err := a.engine.BulkRefresh(cmd.Context(), user)
		if report == nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			if jerr := output.JSON(report); jerr != nil {
				return jerr
			}
			return err
		}

		output.Success("Checked %d linked tasks: %d synced, %d unlinked", report.Checked, report.Synced, report.Unlinked)
		if len(report.Failures) > 0 {
			lines := make([]string, len(report.Failures))
			for i, f := range report.Failures {
				lines[i] = fmt.Sprintf("%s: %s", f.TaskID, f.Error)
			}
			output.Warning("%d tasks could not be refreshed:", len(report.Failures))
			for _, line := range output.BulletList(lines, 2) {
				output.Info("%s", line)
			}
		}
		if errors.Is(err, syncer.ErrAuthFailed) {
			return fail(cmd, err)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
