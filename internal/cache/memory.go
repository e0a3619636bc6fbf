package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"mediaresolver/internal/resolver"
)

// Memory is a mutex-guarded in-process result cache for single-process
// deployments and tests. Expiry is pull-based: entries are dropped when a
// read finds them stale.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	settings resolver.Settings
	clock    resolver.Clock
}

type memoryEntry struct {
	desc      resolver.MediaDescriptor
	expiresAt time.Time
}

// NewMemory constructs a Memory cache.
func NewMemory(settings resolver.Settings, clock resolver.Clock) *Memory {
	return &Memory{
		entries:  make(map[string]memoryEntry),
		settings: settings,
		clock:    clock,
	}
}

// Get returns the live entry for id or resolver.ErrCacheMiss.
func (m *Memory) Get(_ context.Context, id resolver.ContentIdentity) (*resolver.MediaDescriptor, error) {
	if !id.Valid() {
		return nil, resolver.ErrCacheMiss
	}
	key := id.CacheKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, resolver.ErrCacheMiss
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, resolver.ErrCacheMiss
	}
	desc := entry.desc
	return &desc, nil
}

// Set overwrites the entry for id with the platform TTL.
func (m *Memory) Set(_ context.Context, id resolver.ContentIdentity, desc resolver.MediaDescriptor) error {
	if !id.Valid() {
		return nil
	}
	ttl := ttlFor(m.settings, id.Platform)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id.CacheKey()] = memoryEntry{
		desc:      desc,
		expiresAt: m.clock.Now().Add(ttl),
	}
	return nil
}

// Clear removes entries matching the platform prefix and reports how many
// were dropped.
func (m *Memory) Clear(_ context.Context, platform resolver.Platform) (int, error) {
	prefix := clearPrefix(platform)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}
