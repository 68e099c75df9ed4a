package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/vulnsphere/console/internal/database"
)

// SessionStore persists the pair of one browser session in SQLite.
type SessionStore struct {
	db *database.DB
	id string
}

func NewSessionStore(db *database.DB, sessionID string) *SessionStore {
	return &SessionStore{db: db, id: sessionID}
}

func (s *SessionStore) ID() string { return s.id }

func (s *SessionStore) Load(ctx context.Context) (Tokens, error) {
	sess, err := s.db.GetSession(ctx, s.id)
	if errors.Is(err, database.ErrSessionNotFound) {
		return Tokens{}, ErrNoSession
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("load session: %w", err)
	}
	return Tokens{Access: sess.AccessToken, Refresh: sess.RefreshToken}, nil
}

func (s *SessionStore) SetAccess(ctx context.Context, access string) error {
	err := s.db.UpdateAccessToken(ctx, s.id, access)
	if errors.Is(err, database.ErrSessionNotFound) {
		return ErrNoSession
	}
	return err
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.db.DeleteSession(ctx, s.id)
}
