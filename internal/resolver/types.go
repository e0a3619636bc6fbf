// Package resolver defines core types shared across subsystems.
package resolver

import (
	"fmt"
	"time"
)

// Platform identifies a supported social-media platform.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformPinterest Platform = "pinterest"
	PlatformUnknown   Platform = ""
)

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{
		PlatformInstagram,
		PlatformTikTok,
		PlatformYouTube,
		PlatformTwitter,
		PlatformFacebook,
		PlatformPinterest,
	}
}

// ContentIdentity is the canonical (platform, contentId) pair used as the
// cache key for a piece of media. Share-token IDs are case-sensitive and
// must be preserved exactly as extracted.
type ContentIdentity struct {
	Platform  Platform `json:"platform"`
	ContentID string   `json:"content_id"`
}

// Valid reports whether an identity was extracted.
func (id ContentIdentity) Valid() bool {
	return id.Platform != PlatformUnknown && id.ContentID != ""
}

// CacheKey renders the flat-namespace cache key for this identity.
func (id ContentIdentity) CacheKey() string {
	return fmt.Sprintf("result:%s:%s", id.Platform, id.ContentID)
}

// MediaFormat is one downloadable variant of a resolved piece of media.
type MediaFormat struct {
	Quality   string `json:"quality"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Engagement carries the public counters attached to a post.
type Engagement struct {
	Likes    int64 `json:"likes,omitempty"`
	Comments int64 `json:"comments,omitempty"`
	Shares   int64 `json:"shares,omitempty"`
	Views    int64 `json:"views,omitempty"`
}

// MediaDescriptor is the resolved result for a piece of media. Cached and
// response-time flags live on Response, not here, so a cache entry never
// carries response-path state.
type MediaDescriptor struct {
	Title      string        `json:"title"`
	Thumbnail  string        `json:"thumbnail,omitempty"`
	Author     string        `json:"author,omitempty"`
	Formats    []MediaFormat `json:"formats"`
	Engagement Engagement    `json:"engagement,omitempty"`
	UsedCookie bool          `json:"used_cookie"`
}

// Request is the inbound resolve request after transport decoding.
type Request struct {
	URL    string          `json:"url" validate:"required,min=8,max=4096"`
	Cookie CredentialInput `json:"cookie,omitempty"`

	// Transport-derived fields, never decoded from the body.
	APIKey   string `json:"-"`
	ClientIP string `json:"-"`
}

// Response is the outbound resolve response.
type Response struct {
	Success        bool             `json:"success"`
	Platform       Platform         `json:"platform,omitempty"`
	Data           *MediaDescriptor `json:"data,omitempty"`
	Cached         bool             `json:"cached"`
	ResponseTimeMs int64            `json:"response_time_ms"`
	Error          string           `json:"error,omitempty"`
	RetryAfterMs   int64            `json:"retry_after_ms,omitempty"`
}

// CredentialTier partitions the credential pool.
type CredentialTier string

// Credential tiers. Private selection falls back to public when exhausted.
const (
	TierPublic  CredentialTier = "public"
	TierPrivate CredentialTier = "private"
)

// CredentialStatus is the health state of a pooled credential.
type CredentialStatus string

// Credential health states.
const (
	StatusHealthy  CredentialStatus = "healthy"
	StatusCooldown CredentialStatus = "cooldown"
	StatusExpired  CredentialStatus = "expired"
	StatusDisabled CredentialStatus = "disabled"
)

// Credential is one platform authentication credential owned by the pool.
type Credential struct {
	ID            string           `json:"id"`
	Platform      Platform         `json:"platform"`
	Tier          CredentialTier   `json:"tier"`
	Secret        string           `json:"-"`
	Status        CredentialStatus `json:"status"`
	CooldownUntil *time.Time       `json:"cooldown_until,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	LastUsed      time.Time        `json:"last_used"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Outcome classifies the result of a scrape attempt for credential health.
type Outcome string

// Scrape outcomes reported back to the credential pool.
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeAuthFailure  Outcome = "auth_failure"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeGenericError Outcome = "generic_error"
)

// APIKeyStatus is the lifecycle state of an API key.
type APIKeyStatus string

// API key states. Lifecycle is managed externally; the pipeline only
// validates keys and records usage.
const (
	APIKeyActive   APIKeyStatus = "active"
	APIKeyDisabled APIKeyStatus = "disabled"
)

// APIKey is the validated context attached to a keyed caller.
type APIKey struct {
	ID     string       `json:"id"`
	Status APIKeyStatus `json:"status"`
	Tier   string       `json:"tier"`
	Quota  int64        `json:"quota"`
}

// Event is published after each terminal resolution, fire-and-forget.
type Event struct {
	Platform   Platform  `json:"platform"`
	ContentID  string    `json:"content_id,omitempty"`
	Success    bool      `json:"success"`
	Cached     bool      `json:"cached"`
	UsedCookie bool      `json:"used_cookie"`
	LatencyMs  int64     `json:"latency_ms"`
	At         time.Time `json:"at"`
}
