// Package memory is an in-process sessionctl.ProfileStore for tests, demos
// and the CLI's offline mode.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/edudashpro/sessionctl"
)

type Store struct {
	mu     sync.RWMutex
	rows   map[string]sessionctl.ProfileRow
	denied map[string]struct{}
	calls  atomic.Int64
}

func New() *Store {
	return &Store{
		rows:   make(map[string]sessionctl.ProfileRow),
		denied: make(map[string]struct{}),
	}
}

// Put stores row under identityID, replacing any previous row.
func (s *Store) Put(identityID string, row sessionctl.ProfileRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[identityID] = row
}

func (s *Store) Delete(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, identityID)
}

// Deny makes lookups for identityID fail as a policy rejection until Allow
// is called.
func (s *Store) Deny(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[identityID] = struct{}{}
}

func (s *Store) Allow(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.denied, identityID)
}

// Calls returns how many lookups have been served.
func (s *Store) Calls() int64 {
	return s.calls.Load()
}

// FindProfileByIdentityID implements [sessionctl.ProfileStore].
func (s *Store) FindProfileByIdentityID(ctx context.Context, identityID string) (*sessionctl.ProfileRow, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.denied[identityID]; ok {
		return nil, sessionctl.ErrProfileAccessDenied
	}
	row, ok := s.rows[identityID]
	if !ok {
		return nil, sessionctl.ErrProfileNotFound
	}
	return &row, nil
}
