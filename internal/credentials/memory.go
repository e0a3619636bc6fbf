package credentials

import (
	"context"
	"errors"
	"sync"

	"mediaresolver/internal/resolver"
)

// ErrNotFound is returned for unknown credential IDs.
var ErrNotFound = errors.New("credential not found")

// MemoryStore keeps credentials in process memory, for single-process
// deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]resolver.Credential
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]resolver.Credential)}
}

// List returns credentials for a platform; empty platform lists all.
func (s *MemoryStore) List(_ context.Context, platform resolver.Platform) ([]resolver.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resolver.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		if platform != resolver.PlatformUnknown && cred.Platform != platform {
			continue
		}
		out = append(out, cred)
	}
	return out, nil
}

// Get fetches one credential by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (resolver.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[id]
	if !ok {
		return resolver.Credential{}, ErrNotFound
	}
	return cred, nil
}

// Save upserts a credential record.
func (s *MemoryStore) Save(_ context.Context, cred resolver.Credential) error {
	if cred.ID == "" {
		return errors.New("credential id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ID] = cred
	return nil
}
