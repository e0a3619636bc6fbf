// Package keys implements API key validation and usage accounting. Key
// lifecycle is managed externally; this package only validates presented
// keys and records usage against them.
package keys

import (
	"context"
	"sync"

	"mediaresolver/internal/resolver"
)

// Usage tracks per-key request accounting.
type Usage struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
}

// MemoryStore keeps API keys in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	keys  map[string]resolver.APIKey // secret -> key
	usage map[string]Usage           // key id -> usage
}

// NewMemoryStore constructs a MemoryStore seeded with the given keys.
func NewMemoryStore(seed map[string]resolver.APIKey) *MemoryStore {
	keys := make(map[string]resolver.APIKey, len(seed))
	for secret, key := range seed {
		keys[secret] = key
	}
	return &MemoryStore{
		keys:  keys,
		usage: make(map[string]Usage),
	}
}

// Validate resolves a presented secret to its key context.
func (s *MemoryStore) Validate(_ context.Context, secret string) (*resolver.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[secret]
	if !ok || key.Status != resolver.APIKeyActive {
		return nil, resolver.ErrKeyInvalid
	}
	out := key
	return &out, nil
}

// RecordUsage increments the counters for a key, success or not.
func (s *MemoryStore) RecordUsage(_ context.Context, keyID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usage[keyID]
	u.Total++
	if success {
		u.Succeeded++
	}
	s.usage[keyID] = u
	return nil
}

// UsageFor reports the recorded usage for a key.
func (s *MemoryStore) UsageFor(keyID string) Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[keyID]
}
