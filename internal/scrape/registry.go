// Package scrape holds the per-platform scraper registry, the default
// OpenGraph scraper, and the heuristic outcome classifier. Platform
// scrapers are opaque to the pipeline; the registry is the only coupling
// point.
package scrape

import (
	"sync"

	"mediaresolver/internal/resolver"
)

// Registry maps platforms to their scraper implementation.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[resolver.Platform]resolver.Scraper
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[resolver.Platform]resolver.Scraper)}
}

// Register installs (or replaces) the scraper for a platform.
func (r *Registry) Register(platform resolver.Platform, s resolver.Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[platform] = s
}

// Get returns the scraper for a platform, if one is registered.
func (r *Registry) Get(platform resolver.Platform) (resolver.Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[platform]
	return s, ok
}
