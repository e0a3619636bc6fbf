package cache

import (
	"context"

	"mediaresolver/internal/resolver"
)

// Noop is the degraded-mode cache used when no backing store is
// configured: every read misses and every write succeeds silently, so
// the pipeline behaves as if caching were disabled.
type Noop struct{}

// NewNoop constructs a Noop cache.
func NewNoop() *Noop {
	return &Noop{}
}

// Get always misses.
func (Noop) Get(context.Context, resolver.ContentIdentity) (*resolver.MediaDescriptor, error) {
	return nil, resolver.ErrCacheMiss
}

// Set succeeds silently.
func (Noop) Set(context.Context, resolver.ContentIdentity, resolver.MediaDescriptor) error {
	return nil
}

// Clear removes nothing.
func (Noop) Clear(context.Context, resolver.Platform) (int, error) {
	return 0, nil
}
