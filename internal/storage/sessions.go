package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pocketbook/internal/models"
)

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	now := db.now().Unix()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, created_at, last_activity, expires_at) VALUES (?, ?, ?, ?, ?)",
		token, userID, now, now, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ValidateSessionWithInfo checks that a session token is unexpired and
// returns the owning user with the session timestamps. ErrNotFound covers
// unknown and expired tokens alike.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, db.now().Unix())

	var u models.User
	var createdAt, lastActivity, expiresAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt, &lastActivity, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &SessionInfo{
		User:         &u,
		LastActivity: time.Unix(lastActivity, 0),
		ExpiresAt:    time.Unix(expiresAt, 0),
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		db.now().Unix(), newExpiresAt.Unix(), token,
	)
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return nil
}

// DeleteSession removes a session by token. Deleting an unknown token is not
// an error.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanExpiredSessions removes all expired sessions and reports how many.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", db.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return result.RowsAffected()
}
