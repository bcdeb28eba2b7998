package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User is an account. The GitHub token is stored encrypted and is only
// meaningful to the credential vault.
type User struct {
	ID                   string
	Email                string
	GitHubEnabled        bool
	GitHubTokenEncrypted []byte
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasGitHubToken reports whether an encrypted token is stored.
func (u *User) HasGitHubToken() bool { return len(u.GitHubTokenEncrypted) > 0 }

const userColumns = `id, email, github_integration_enabled, github_token_encrypted, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Email, &u.GitHubEnabled, &u.GitHubTokenEncrypted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user with the given email (lowercased).
func (tx *Tx) CreateUser(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	id, err := generateID("u_")
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	ts := now()
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, email, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &User{ID: id, Email: email, CreatedAt: ts, UpdatedAt: ts}, nil
}

// GetUser returns the user with the given ID, or nil if not found.
func (tx *Tx) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(tx.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (tx *Tx) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(tx.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// SetGitHubCredentials stores the integration flag and encrypted token.
// A nil token erases the stored one.
func (tx *Tx) SetGitHubCredentials(ctx context.Context, userID string, enabled bool, token []byte) error {
	var stored any
	if len(token) > 0 {
		stored = token
	}
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE users SET github_integration_enabled = ?, github_token_encrypted = ?, updated_at = ? WHERE id = ?`,
		enabled, stored, now(), userID,
	)
	if err != nil {
		return fmt.Errorf("set github credentials: %w", err)
	}
	return checkAffected(res, "user", userID)
}
