package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var scopeCmd = &cobra.Command{
	Use:     "scope",
	Short:   "Show or change a scope's GitHub integration",
	GroupID: "github",
}

var scopeStatusCmd = &cobra.Command{
	Use:     "status <scope-id>",
	Aliases: []string{"show"},
	Short:   "Show the GitHub configuration in effect for you",
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

		st, err := a.engine.DescribeScope(cmd.Context(), args[0], user)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(scopeJSON(st))
		}
		fmt.Print(output.FormatScope(st))
		return nil
	},
}

var scopeConfigureCmd = &cobra.Command{
	Use:   "configure <scope-id>",
	Short: "Set the repository, project, milestone and label for a scope",
	Long: `Set your GitHub integration for a scope.

The owner's settings are shared with collaborators who point at the same
repository. Disabling integration as the owner detaches collaborators, who
keep the previous settings as their own.

Run without flags in a terminal for an interactive form.

Examples:
  scopes scope configure s_abc --repo octo/app --milestone 3
  scopes scope configure s_abc --repo octo/app --project PVT_kw --label frontend
  scopes scope configure s_abc --disable`,
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

		ctx := cmd.Context()
		var settings integration.Settings
		if !scopeFlagsSet(cmd) && term.IsTerminal(int(os.Stdin.Fd())) {
			settings, err = promptScopeSettings(ctx, a.engine, args[0], user)
		} else {
			settings, err = scopeSettingsFromFlags(ctx, cmd, a.engine, user)
		}
		if err != nil {
			return fail(cmd, err)
		}

		st, err := a.engine.ConfigureScope(ctx, args[0], user, settings)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(scopeJSON(st))
		}
		output.Success("Scope %s updated", st.Scope.ID)
		fmt.Print(output.FormatScope(st))
		return nil
	},
}

// scopeFlagsSet reports whether any of the command's own flags were given.
func scopeFlagsSet(cmd *cobra.Command) bool {
	set := false
	inherited := cmd.InheritedFlags()
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if inherited.Lookup(f.Name) == nil {
			set = true
		}
	})
	return set
}

func splitRepo(s string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", s)
	}
	return owner, name, nil
}

func scopeSettingsFromFlags(ctx context.Context, cmd *cobra.Command, engine *syncer.Engine, user string) (integration.Settings, error) {
	label, _ := cmd.Flags().GetString("label")
	if disable, _ := cmd.Flags().GetBool("disable"); disable {
		return integration.Settings{LabelName: label}, nil
	}

	repo, _ := cmd.Flags().GetString("repo")
	owner, name, err := splitRepo(repo)
	if err != nil {
		return integration.Settings{}, err
	}
	s := integration.Settings{Enabled: true, RepoOwner: owner, RepoName: name, LabelName: label}

	if cmd.Flags().Changed("milestone") {
		number, _ := cmd.Flags().GetInt("milestone")
		milestones, err := engine.Milestones(ctx, user, owner, name)
		if err != nil {
			return s, err
		}
		m := findMilestone(milestones, number)
		if m == nil {
			return s, fmt.Errorf("milestone %d not found in %s", number, repo)
		}
		s.MilestoneNumber, s.MilestoneTitle = &m.Number, m.Title
	}

	if project, _ := cmd.Flags().GetString("project"); project != "" {
		projects, err := engine.Projects(ctx, user, owner, name)
		if err != nil {
			return s, err
		}
		for _, p := range projects {
			if p.ID == project || strconv.Itoa(p.Number) == project {
				s.ProjectID, s.ProjectName = p.ID, p.Name
			}
		}
		if s.ProjectID == "" {
			return s, fmt.Errorf("project %s not found for %s", project, repo)
		}
	}

	repos, err := engine.Repositories(ctx, user)
	if err != nil {
		return s, err
	}
	for _, r := range repos {
		if strings.EqualFold(r.Owner, owner) && strings.EqualFold(r.Name, name) {
			id := r.ID
			s.RepoID = &id
		}
	}
	return s, nil
}

func findMilestone(milestones []github.Milestone, number int) *github.Milestone {
	for i := range milestones {
		if milestones[i].Number == number {
			return &milestones[i]
		}
	}
	return nil
}

// promptScopeSettings walks the user through repository, project and
// milestone selection with huh forms.
func promptScopeSettings(ctx context.Context, engine *syncer.Engine, scopeID, user string) (integration.Settings, error) {
	current, err := engine.DescribeScope(ctx, scopeID, user)
	if err != nil {
		return integration.Settings{}, err
	}

	enabled := current.State.Enabled()
	label := ""
	if current.State.UserConfig != nil {
		label = current.State.UserConfig.LabelName
	}
	err = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Mirror tasks in this scope to GitHub?").
			Value(&enabled),
		huh.NewInput().
			Title("Label").
			Description("Applied to every issue. Blank uses " + current.Label + ".").
			Value(&label),
	)).WithTheme(huh.ThemeDracula()).Run()
	if err != nil {
		return integration.Settings{}, err
	}
	if !enabled {
		return integration.Settings{LabelName: label}, nil
	}

	repos, err := engine.Repositories(ctx, user)
	if err != nil {
		return integration.Settings{}, err
	}
	if len(repos) == 0 {
		return integration.Settings{}, fmt.Errorf("your token cannot see any repositories")
	}
	repoOptions := make([]huh.Option[int], len(repos))
	for i, r := range repos {
		repoOptions[i] = huh.NewOption(r.Owner+"/"+r.Name, i)
	}
	var repoIdx int
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title("Repository").Options(repoOptions...).Value(&repoIdx),
	)).WithTheme(huh.ThemeDracula()).Run()
	if err != nil {
		return integration.Settings{}, err
	}
	repo := repos[repoIdx]
	s := integration.Settings{Enabled: true, RepoID: &repo.ID, RepoOwner: repo.Owner, RepoName: repo.Name, LabelName: label}

	milestones, err := engine.Milestones(ctx, user, repo.Owner, repo.Name)
	if err != nil {
		return s, err
	}
	projects, err := engine.Projects(ctx, user, repo.Owner, repo.Name)
	if err != nil {
		return s, err
	}

	milestoneOptions := []huh.Option[int]{huh.NewOption("None", 0)}
	for _, m := range milestones {
		milestoneOptions = append(milestoneOptions, huh.NewOption(fmt.Sprintf("%s (%s)", m.Title, m.State), m.Number))
	}
	projectOptions := []huh.Option[string]{huh.NewOption("None", "")}
	for _, p := range projects {
		projectOptions = append(projectOptions, huh.NewOption(p.Name, p.ID))
	}

	var milestone int
	var project string
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title("Milestone").Options(milestoneOptions...).Value(&milestone),
		huh.NewSelect[string]().Title("Project").Options(projectOptions...).Value(&project),
	)).WithTheme(huh.ThemeDracula()).Run()
	if err != nil {
		return s, err
	}

	if m := findMilestone(milestones, milestone); m != nil {
		s.MilestoneNumber, s.MilestoneTitle = &m.Number, m.Title
	}
	for _, p := range projects {
		if p.ID == project && project != "" {
			s.ProjectID, s.ProjectName = p.ID, p.Name
		}
	}
	return s, nil
}

type scopeOutput struct {
	ScopeID    string `json:"scope_id"`
	Name       string `json:"name"`
	IsOwner    bool   `json:"is_owner"`
	Enabled    bool   `json:"enabled"`
	Repository string `json:"repository,omitempty"`
	Project    string `json:"project,omitempty"`
	Milestone  string `json:"milestone,omitempty"`
	Label      string `json:"label"`
	Shared     bool   `json:"linked_to_owner"`
	Detached   bool   `json:"detached_from_owner"`
}

func scopeJSON(st *syncer.ScopeStatus) scopeOutput {
	out := scopeOutput{
		ScopeID:  st.Scope.ID,
		Name:     st.Scope.Name,
		IsOwner:  st.IsOwner,
		Enabled:  st.State.Enabled(),
		Label:    st.Label,
		Shared:   st.State.LinkedToOwner,
		Detached: st.State.DetachedFromOwner,
	}
	if eff := st.State.EffectiveConfig; eff != nil {
		out.Repository = eff.RepoFullName()
		out.Project = eff.ProjectName
		out.Milestone = eff.MilestoneTitle
	}
	return out
}

func init() {
	scopeConfigureCmd.Flags().String("repo", "", "Repository as owner/name")
	scopeConfigureCmd.Flags().String("project", "", "Project id or number to add new issues to")
	scopeConfigureCmd.Flags().Int("milestone", 0, "Milestone number for new issues")
	scopeConfigureCmd.Flags().String("label", "", "Label applied to every issue (default: scope name)")
	scopeConfigureCmd.Flags().Bool("disable", false, "Turn GitHub integration off")

	scopeCmd.AddCommand(scopeStatusCmd)
	scopeCmd.AddCommand(scopeConfigureCmd)
	rootCmd.AddCommand(scopeCmd)
}
