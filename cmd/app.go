package cmd

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/marcus/scopes/internal/config"
	"github.com/marcus/scopes/internal/crypto"
	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/output"
	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
	"github.com/spf13/cobra"
)

// app bundles what a command needs to drive the sync engine.
type app struct {
	store  *store.Store
	engine *syncer.Engine
	log    *slog.Logger
}

func (a *app) Close() error { return a.store.Close() }

// newLogger builds the slog logger selected by c.LogLevel and c.LogFormat.
func newLogger(c config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// openApp opens the store and wires the engine for c.
func openApp(c config.Config, log *slog.Logger) (*app, error) {
	vault, err := crypto.NewVault(c.AppSecret)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(c.DBDriver, c.DBPath)
	if err != nil {
		return nil, err
	}
	client := github.New(c.GitHubAPIURL, c.GitHubGraphQLURL, c.HTTPTimeout)
	client.Log = log.With("component", "github")
	return &app{
		store:  st,
		engine: syncer.New(st, client, vault, log),
		log:    log,
	}, nil
}

// openCLI opens the app for a CLI command. Engine logs go to stderr and
// only warnings surface unless debug logging is configured.
func openCLI() (*app, error) {
	c := cfg
	if strings.ToLower(c.LogLevel) != "debug" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" || c.LogFormat == "json" {
		c.LogFormat = "text"
	}
	a, err := openApp(c, newLogger(c, os.Stderr))
	if err != nil {
		output.Error("%v", err)
		return nil, err
	}
	return a, nil
}

// errorCode maps engine errors onto the structured output codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, syncer.ErrAuthFailed):
		return output.ErrCodeGitHubAuth
	case errors.Is(err, syncer.ErrCommunication):
		return output.ErrCodeGitHubFailure
	case errors.Is(err, syncer.ErrNotFound):
		return output.ErrCodeNotFound
	case syncer.IsValidationError(err):
		return output.ErrCodeInvalidInput
	case errors.Is(err, syncer.ErrNotConfigured),
		errors.Is(err, syncer.ErrOpenIssue),
		errors.Is(err, syncer.ErrNotLinked),
		errors.Is(err, syncer.ErrAlreadyLinked):
		return output.ErrCodeConflict
	}
	return output.ErrCodeDatabaseError
}

// fail reports err in the command's output mode and returns it.
func fail(cmd *cobra.Command, err error) error {
	if jsonOutput(cmd) {
		output.JSONError(errorCode(err), err.Error())
		return err
	}
	if errors.Is(err, syncer.ErrAuthFailed) {
		output.Error("GitHub rejected your token and it has been cleared. Run `scopes token set` to configure a new one.")
		return err
	}
	output.Error("%v", err)
	return err
}

// warn prints the warnings attached to a sync result.
func warn(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	output.Warning("some GitHub updates did not complete:")
	for _, line := range output.BulletList(warnings, 2) {
		output.Info("%s", line)
	}
}
