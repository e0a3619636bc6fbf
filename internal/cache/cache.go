// Package cache implements the result cache keyed by content identity.
// Entries expire passively via TTL; there is no eviction sweep and no
// stampede protection (concurrent misses each fall through to the
// scraper, which is idempotent).
package cache

import (
	"time"

	"mediaresolver/internal/resolver"
)

// keyPrefix is the flat-namespace prefix shared by all cache entries.
const keyPrefix = "result:"

// Default TTLs used when the runtime settings carry no override. Stable
// CDN-backed platforms keep results for days; instagram is short because
// story URLs expire within minutes.
const (
	defaultTTL          = 72 * time.Hour
	defaultEphemeralTTL = 30 * time.Minute
)

// DefaultTTL returns the hardcoded fallback TTL for a platform.
func DefaultTTL(platform resolver.Platform) time.Duration {
	if platform == resolver.PlatformInstagram {
		return defaultEphemeralTTL
	}
	return defaultTTL
}

// ttlFor resolves the entry TTL: runtime settings first, fallback table
// when settings are absent or carry no value.
func ttlFor(settings resolver.Settings, platform resolver.Platform) time.Duration {
	if settings != nil {
		if ttl := settings.CacheTTL(platform); ttl > 0 {
			return ttl
		}
	}
	return DefaultTTL(platform)
}

// clearPrefix renders the key prefix for bulk invalidation; an empty
// platform clears the whole result namespace.
func clearPrefix(platform resolver.Platform) string {
	if platform == resolver.PlatformUnknown {
		return keyPrefix
	}
	return keyPrefix + string(platform) + ":"
}
