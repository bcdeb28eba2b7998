package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/scopes/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Manage your GitHub access token",
	GroupID: "github",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Verify and store a GitHub personal access token",
	Long: `Verify a GitHub personal access token and store it encrypted.

Without an argument the token is prompted for when stdin is a terminal,
otherwise it is read from stdin.

Examples:
  scopes token set                     # Prompt for the token
  echo "$GH_TOKEN" | scopes token set  # Read from stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := actingUser()
		if err != nil {
			return fail(cmd, err)
		}

		var token string
		if len(args) == 1 {
			token = args[0]
		} else if token, err = readToken(); err != nil {
			return fail(cmd, err)
		}

		a, err := openCLI()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.SetToken(cmd.Context(), user, token); err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(map[string]bool{"github_enabled": true})
		}
		output.Success("GitHub token verified and saved")
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored GitHub token",
	Args:  cobra.NoArgs,
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

		if err := a.engine.ClearToken(cmd.Context(), user); err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(map[string]bool{"github_enabled": false})
		}
		output.Success("GitHub token cleared")
		return nil
	},
}

func readToken() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		var token string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("GitHub personal access token").
				Description("Needs the repo scope; project scope to add issues to projects.").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token is required")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return "", err
		}
		return token, nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}
