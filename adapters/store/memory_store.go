package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/portero/core"
)

// MemoryStore is an in-memory credential store for development and tests
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]core.Credential
	byUsername map[string]string
	now        func() time.Time
}

// NewMemoryStore creates a memory store holding creds. Later entries win on
// duplicate ids. It panics on a credential Save would reject.
func NewMemoryStore(creds ...core.Credential) *MemoryStore {
	s := &MemoryStore{
		byID:       make(map[string]core.Credential, len(creds)),
		byUsername: make(map[string]string, len(creds)),
		now:        time.Now,
	}
	for _, c := range creds {
		if err := s.Save(context.Background(), c); err != nil {
			panic(fmt.Sprintf("memory store: seed %q: %v", c.Username, err))
		}
	}
	return s
}

// FindByUsername returns a copy of the stored credential
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, nil
	}
	c := cloneCredential(s.byID[id])
	return &c, nil
}

// TouchLastLogin stamps the current time on the credential
func (s *MemoryStore) TouchLastLogin(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	now := s.now()
	c.LastLogin = &now
	s.byID[id] = c
	return true, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Save inserts or replaces a credential
func (s *MemoryStore) Save(_ context.Context, c core.Credential) error {
	if c.ID == "" || c.Username == "" {
		return fmt.Errorf("save credential: id and username are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byUsername[c.Username]; ok && owner != c.ID {
		return ErrUsernameTaken
	}
	if prev, ok := s.byID[c.ID]; ok && prev.Username != c.Username {
		delete(s.byUsername, prev.Username)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	s.byID[c.ID] = cloneCredential(c)
	s.byUsername[c.Username] = c.ID
	return nil
}

func cloneCredential(c core.Credential) core.Credential {
	if c.LastLogin != nil {
		t := *c.LastLogin
		c.LastLogin = &t
	}
	return c
}
