package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/scopes/internal/integration"
	"github.com/marcus/scopes/internal/store"
)

// RefreshFailure records one task that could not be refreshed.
type RefreshFailure struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// RefreshReport summarizes a BulkRefresh sweep.
type RefreshReport struct {
	Checked  int              `json:"checked"`
	Synced   int              `json:"synced"`
	Unlinked int              `json:"unlinked"`
	Failures []RefreshFailure `json:"failures,omitempty"`
	Aborted  bool             `json:"aborted"`
}

// linkedTaskIDs lists every task the user can see whose effective config
// links an issue, in scopes where the user has an effective scope config.
func linkedTaskIDs(ctx context.Context, tx *store.Tx, userID string) ([]string, error) {
	scopes, err := tx.ListScopesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, scope := range scopes {
		state, err := integration.ScopeState(ctx, tx, scope, userID)
		if err != nil {
			return nil, err
		}
		if state.EffectiveConfig == nil {
			continue
		}
		tasks, err := tx.ListTasksInScope(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			cfg, err := integration.EffectiveTaskConfig(ctx, tx, t, userID)
			if err != nil {
				return nil, err
			}
			if cfg.HasIssueLink() {
				ids = append(ids, t.ID)
			}
		}
	}
	return ids, nil
}

// BulkRefresh pulls every linked task of the user, one at a time. Missing
// issues and communication failures are recorded and skipped; an
// authentication failure aborts the sweep since the token is now invalid.
func (e *Engine) BulkRefresh(ctx context.Context, userID string) (*RefreshReport, error) {
	var ids []string
	err := e.store.View(ctx, func(tx *store.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		if _, err := e.token(user); err != nil {
			return err
		}
		ids, err = linkedTaskIDs(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &RefreshReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		res, err := e.SyncFromRemote(ctx, id, userID)
		switch {
		case errors.Is(err, ErrAuthFailed):
			report.Aborted = true
			report.Failures = append(report.Failures, RefreshFailure{TaskID: id, Error: err.Error()})
			return report, err
		case err != nil:
			report.Failures = append(report.Failures, RefreshFailure{TaskID: id, Error: err.Error()})
		case res.Unlinked:
			report.Unlinked++
		default:
			report.Synced++
		}
	}
	e.log.Info("bulk refresh finished", "user_id", userID,
		"checked", report.Checked, "synced", report.Synced, "unlinked", report.Unlinked, "failed", len(report.Failures))
	return report, nil
}
