package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/store"
)

// ErrInvalidToken is returned when a token is blank or GitHub rejects it.
var ErrInvalidToken = errors.New("GitHub rejected the token")

// SetToken verifies token against GitHub, stores it encrypted and enables
// the user's integration.
func (e *Engine) SetToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	ok, err := e.tracker.TestConnection(ctx, token)
	if err != nil {
		e.log.Error("test github connection", "user_id", userID, "err", err)
		return fmt.Errorf("test connection: %w", ErrCommunication)
	}
	if !ok {
		return ErrInvalidToken
	}
	sealed, err := e.vault.EncryptToken(token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	return e.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.SetGitHubCredentials(ctx, userID, true, sealed); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %s: %w", userID, ErrNotFound)
			}
			return err
		}
		return nil
	})
}

// ClearToken disables the user's integration and erases the stored token.
func (e *Engine) ClearToken(ctx context.Context, userID string) error {
	err := e.InvalidateCredentials(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return err
}

func (e *Engine) userToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := e.store.View(ctx, func(tx *store.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		token, err = e.token(user)
		return err
	})
	return token, err
}

// listErr maps list endpoint failures. An unknown repository is ErrNotFound.
func (e *Engine) listErr(ctx context.Context, userID, what string, err error) error {
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return e.remoteErr(ctx, userID, "", what, err)
}

// Repositories lists the repositories visible to the user's token.
func (e *Engine) Repositories(ctx context.Context, userID string) ([]github.Repository, error) {
	token, err := e.userToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	repos, err := e.tracker.ListRepositories(ctx, token)
	if err != nil {
		return nil, e.listErr(ctx, userID, "list repositories", err)
	}
	return repos, nil
}

// Projects lists the Projects v2 boards and classic projects of a
// repository. Classic projects being disabled on the repository is not an
// error.
func (e *Engine) Projects(ctx context.Context, userID, owner, repo string) ([]github.Project, error) {
	token, err := e.userToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	projects, err := e.tracker.ListProjectsV2(ctx, token, owner, repo)
	if err != nil {
		return nil, e.listErr(ctx, userID, "list projects", err)
	}
	classic, err := e.tracker.ListProjects(ctx, token, owner, repo)
	switch {
	case errors.Is(err, github.ErrProjectsUnavailable):
	case err != nil:
		return nil, e.listErr(ctx, userID, "list projects", err)
	default:
		projects = append(projects, classic...)
	}
	return projects, nil
}

// Milestones lists the open and closed milestones of a repository.
func (e *Engine) Milestones(ctx context.Context, userID, owner, repo string) ([]github.Milestone, error) {
	token, err := e.userToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	milestones, err := e.tracker.ListMilestones(ctx, token, owner, repo)
	if err != nil {
		return nil, e.listErr(ctx, userID, "list milestones", err)
	}
	return milestones, nil
}
