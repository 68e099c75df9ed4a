package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session id has no row or has expired.
var ErrSessionNotFound = errors.New("session not found")

// --- Sessions ---

func (db *DB) CreateSession(ctx context.Context, s *Session) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, username, access_token, refresh_token, expires_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Username, s.AccessToken, s.RefreshToken, s.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns the live session with the given id. Expired rows are
// reported as ErrSessionNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	var expires int64
	err := db.QueryRowContext(ctx,
		`SELECT id, username, access_token, refresh_token, created_at, updated_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Username, &s.AccessToken, &s.RefreshToken, &s.CreatedAt, &s.UpdatedAt, &expires)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.ExpiresAt = time.Unix(expires, 0)
	if s.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// UpdateAccessToken replaces the access token of a session, leaving the
// refresh token untouched.
func (db *DB) UpdateAccessToken(ctx context.Context, id, access string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET access_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		access, id,
	)
	if err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes every session that expired before now and
// returns how many were removed.
func (db *DB) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
