package config

import (
	"sync"
	"time"

	"mediaresolver/internal/resolver"
)

// Runtime holds the hot-reloadable settings the pipeline consults on every
// request. Admin endpoints mutate it; readers never see torn state.
type Runtime struct {
	mu          sync.RWMutex
	maintenance bool
	disabled    map[resolver.Platform]bool
	defaultTTL  time.Duration
	platformTTL map[resolver.Platform]time.Duration
	rateLimit   int
	rateWindow  time.Duration
}

// NewRuntime seeds runtime settings from the loaded config.
func NewRuntime(cfg Config) *Runtime {
	disabled := make(map[resolver.Platform]bool, len(cfg.Platforms.Disabled))
	for _, p := range cfg.Platforms.Disabled {
		disabled[resolver.Platform(p)] = true
	}
	r := &Runtime{
		maintenance: cfg.Admission.MaintenanceMode,
		disabled:    disabled,
		defaultTTL:  time.Duration(cfg.Cache.TTLHours) * time.Hour,
		platformTTL: make(map[resolver.Platform]time.Duration),
		rateLimit:   cfg.Admission.RateLimit,
		rateWindow:  time.Duration(cfg.Admission.RateWindowSec) * time.Second,
	}
	// Instagram results go stale fast: CDN URLs expire within the hour.
	if cfg.Cache.EphemeralTTLMins > 0 {
		r.platformTTL[resolver.PlatformInstagram] = time.Duration(cfg.Cache.EphemeralTTLMins) * time.Minute
	}
	return r
}

// PlatformEnabled reports whether resolves for a platform are accepted.
func (r *Runtime) PlatformEnabled(platform resolver.Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[platform]
}

// SetPlatformEnabled toggles a platform at runtime.
func (r *Runtime) SetPlatformEnabled(platform resolver.Platform, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		delete(r.disabled, platform)
	} else {
		r.disabled[platform] = true
	}
}

// CacheTTL returns the freshness window for a platform's cache entries.
func (r *Runtime) CacheTTL(platform resolver.Platform) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ttl, ok := r.platformTTL[platform]; ok {
		return ttl
	}
	return r.defaultTTL
}

// SetCacheTTL overrides the freshness window for one platform.
func (r *Runtime) SetCacheTTL(platform resolver.Platform, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platformTTL[platform] = ttl
}

// GlobalRateLimit returns the anonymous-caller limit and its window.
func (r *Runtime) GlobalRateLimit() (int, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rateLimit, r.rateWindow
}

// SetGlobalRateLimit replaces the anonymous-caller limit.
func (r *Runtime) SetGlobalRateLimit(limit int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimit = limit
	r.rateWindow = window
}

// MaintenanceMode reports whether all resolves are refused.
func (r *Runtime) MaintenanceMode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maintenance
}

// SetMaintenanceMode toggles maintenance refusal.
func (r *Runtime) SetMaintenanceMode(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maintenance = on
}
