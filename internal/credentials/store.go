// Package credentials holds the access/refresh token pair used to call the
// VulnSphere API.
//
// Writers follow a single-writer contract: login creates the pair, only the
// API client's refresh path replaces the access token, and logout or an
// unrecoverable 401 clears it.
package credentials

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession is returned by Load when no credentials are stored.
var ErrNoSession = errors.New("credentials: no session")

// Tokens is the persisted credential pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Store reads and writes the persisted credential pair.
type Store interface {
	Load(ctx context.Context) (Tokens, error)
	SetAccess(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	tokens  Tokens
	present bool
}

func NewMemoryStore(t Tokens) *MemoryStore {
	return &MemoryStore{tokens: t, present: true}
}

func (m *MemoryStore) Load(context.Context) (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return Tokens{}, ErrNoSession
	}
	return m.tokens, nil
}

func (m *MemoryStore) SetAccess(_ context.Context, access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return ErrNoSession
	}
	m.tokens.Access = access
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = Tokens{}
	m.present = false
	return nil
}

// Cleared reports whether Clear has been called.
func (m *MemoryStore) Cleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.present
}
