package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Scope is a named collection of tasks with one owner.
type Scope struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOwner reports whether userID owns the scope.
func (s *Scope) IsOwner(userID string) bool { return s.OwnerID == userID }

const scopeColumns = `id, name, description, owner_id, created_at, updated_at`

func scanScope(row interface{ Scan(...any) error }) (*Scope, error) {
	s := &Scope{}
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.OwnerID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateScope creates a scope owned by ownerID.
func (tx *Tx) CreateScope(ctx context.Context, name, description, ownerID string) (*Scope, error) {
	if name == "" {
		return nil, fmt.Errorf("scope name is required")
	}

	id, err := generateID("s_")
	if err != nil {
		return nil, fmt.Errorf("generate scope id: %w", err)
	}

	ts := now()
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO scopes (id, name, description, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, description, ownerID, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert scope: %w", err)
	}
	return &Scope{ID: id, Name: name, Description: description, OwnerID: ownerID, CreatedAt: ts, UpdatedAt: ts}, nil
}

// GetScope returns a scope by ID, or nil if not found.
func (tx *Tx) GetScope(ctx context.Context, id string) (*Scope, error) {
	s, err := scanScope(tx.tx.QueryRowContext(ctx, `SELECT `+scopeColumns+` FROM scopes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scope: %w", err)
	}
	return s, nil
}

// ListScopesForUser returns scopes the user owns or has an accepted share on.
func (tx *Tx) ListScopesForUser(ctx context.Context, userID string) ([]*Scope, error) {
	rows, err := tx.tx.QueryContext(ctx, `
		SELECT `+scopeColumns+` FROM scopes WHERE owner_id = ?
		UNION
		SELECT s.id, s.name, s.description, s.owner_id, s.created_at, s.updated_at
		FROM scopes s JOIN scope_shares sh ON sh.scope_id = s.id
		WHERE sh.user_id = ? AND sh.accepted = 1
		ORDER BY created_at, id`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []*Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scopes: iterate: %w", err)
	}
	return scopes, nil
}

// ShareScope records a share. Invitation flows live outside this package;
// only accepted shares grant access.
func (tx *Tx) ShareScope(ctx context.Context, scopeID, userID string, accepted bool) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO scope_shares (scope_id, user_id, accepted, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope_id, user_id) DO UPDATE SET accepted = excluded.accepted`,
		scopeID, userID, accepted, now(),
	)
	if err != nil {
		return fmt.Errorf("share scope: %w", err)
	}
	return nil
}

// HasAccess reports whether the user owns the scope or has an accepted share.
func (tx *Tx) HasAccess(ctx context.Context, scopeID, userID string) (bool, error) {
	var n int
	err := tx.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scopes WHERE id = ? AND owner_id = ?`, scopeID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check scope owner: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	err = tx.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scope_shares WHERE scope_id = ? AND user_id = ? AND accepted = 1`,
		scopeID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check scope share: %w", err)
	}
	return n > 0, nil
}
