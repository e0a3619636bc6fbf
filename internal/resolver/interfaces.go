package resolver

import (
	"context"
	"time"
)

// Scraper resolves a URL into a MediaDescriptor for one platform. The
// per-platform scraping logic is opaque to the pipeline.
type Scraper interface {
	Scrape(ctx context.Context, resolvedURL string, cred *Credential) (*MediaDescriptor, error)
	// AcceptsCredentials reports whether credentialed retries make sense
	// for this platform.
	AcceptsCredentials() bool
	// RequiresAuth marks platforms whose public surface is always gated;
	// the anonymous attempt is skipped for them.
	RequiresAuth() bool
}

// ResultCache maps a content identity to a previously computed descriptor.
// Implementations degrade to miss/no-op when the backing store is down.
type ResultCache interface {
	Get(ctx context.Context, id ContentIdentity) (*MediaDescriptor, error)
	Set(ctx context.Context, id ContentIdentity, desc MediaDescriptor) error
	// Clear removes entries by key prefix; empty platform clears all.
	Clear(ctx context.Context, platform Platform) (int, error)
}

// CredentialPool selects credentials and owns their status transitions.
type CredentialPool interface {
	Select(ctx context.Context, platform Platform, tier CredentialTier) (*Credential, error)
	ReportOutcome(ctx context.Context, credentialID string, outcome Outcome, backoff time.Duration) error
}

// KeyStore validates API keys and records per-key usage.
type KeyStore interface {
	Validate(ctx context.Context, key string) (*APIKey, error)
	RecordUsage(ctx context.Context, keyID string, success bool) error
}

// StatsRecorder is the statistics sink fed after each request.
type StatsRecorder interface {
	RecordRequest(platform Platform, success bool, latency time.Duration)
	RecordError(platform Platform, message string)
}

// Settings is the read-mostly runtime configuration collaborator.
type Settings interface {
	PlatformEnabled(platform Platform) bool
	CacheTTL(platform Platform) time.Duration
	GlobalRateLimit() (limit int, window time.Duration)
	MaintenanceMode() bool
}

// TaskRunner executes detached, best-effort work (cache writes, stats,
// event publishes). Failures are logged by the runner, never propagated.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context))
}

// Publisher pushes resolution events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CaptureStore archives raw failure payloads for later diagnosis.
type CaptureStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Classifier turns a scrape error into a credential outcome. The phrase
// heuristics are policy, so the classifier is pluggable.
type Classifier interface {
	Classify(err error) Outcome
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces credential and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
