package identity

import (
	"context"
	"sync"

	"taskforge.org/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. Used by
// tests and local development; production runs against PGStore.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[string]*Identity
	byUsername map[string]string // username -> id
	byEmail    map[string]string // email -> id
	bySession  map[string]string // session token -> id
}

// NewInMemory creates an empty identity store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[string]*Identity),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		bySession:  make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[id.Username]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byEmail[id.Email]; ok {
		return ErrAlreadyExists
	}
	if id.ID == "" {
		id.ID = ids.New()
	}
	cp := id.Clone()
	s.byID[cp.ID] = cp
	s.byUsername[cp.Username] = cp.ID
	s.byEmail[cp.Email] = cp.ID
	if cp.SessionToken != "" {
		s.bySession[cp.SessionToken] = cp.ID
	}
	return nil
}

func (s *InMemory) Update(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[id.ID]
	if !ok {
		return ErrNotFound
	}
	// Reindex the mutable lookups. Last writer wins on concurrent updates;
	// no optimistic locking here.
	if prev.Email != id.Email {
		delete(s.byEmail, prev.Email)
		s.byEmail[id.Email] = id.ID
	}
	if prev.SessionToken != id.SessionToken {
		delete(s.bySession, prev.SessionToken)
		if id.SessionToken != "" {
			s.bySession[id.SessionToken] = id.ID
		}
	}
	s.byID[id.ID] = id.Clone()
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemory) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemory) FindBySessionToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySession[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *InMemory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}
