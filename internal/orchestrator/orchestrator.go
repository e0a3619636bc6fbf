// Package orchestrator runs the resolve pipeline: admission, URL
// canonicalization, cache lookup, the anonymous-then-credentialed scrape
// ladder, and the detached follow-up work after a terminal result.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaresolver/internal/canonical"
	"mediaresolver/internal/hash/sha256"
	"mediaresolver/internal/metrics"
	"mediaresolver/internal/resolver"
)

// EventTopic is the Pub/Sub topic resolution events land on.
const EventTopic = "media-resolutions"

const defaultResolveTimeout = 45 * time.Second

// Admitter gates requests before the pipeline runs.
type Admitter interface {
	Admit(ctx context.Context, req resolver.Request) (*resolver.APIKey, error)
}

// URLResolver canonicalizes raw URLs into content identities.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) canonical.Resolution
}

// ScraperRegistry looks up the scraper for a platform.
type ScraperRegistry interface {
	Get(platform resolver.Platform) (resolver.Scraper, bool)
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Admitter   Admitter
	Canonical  URLResolver
	Scrapers   ScraperRegistry
	Cache      resolver.ResultCache
	Pool       resolver.CredentialPool
	Keys       resolver.KeyStore
	Stats      resolver.StatsRecorder
	Settings   resolver.Settings
	Tasks      resolver.TaskRunner
	Publisher  resolver.Publisher
	Capture    resolver.CaptureStore
	Classifier resolver.Classifier
	Clock      resolver.Clock
	Logger     *zap.Logger

	// Cooldown is the backoff applied to rate-limited credentials.
	Cooldown time.Duration
	// ResolveTimeout bounds one end-to-end resolve.
	ResolveTimeout time.Duration
	// CapturePrefix namespaces failure payloads in the capture store.
	CapturePrefix string
	// Topic overrides the resolution event topic.
	Topic string
}

// Orchestrator coordinates one resolve request end to end.
type Orchestrator struct {
	d Deps
}

// New constructs an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ResolveTimeout <= 0 {
		d.ResolveTimeout = defaultResolveTimeout
	}
	if d.CapturePrefix == "" {
		d.CapturePrefix = "failures"
	}
	if d.Topic == "" {
		d.Topic = EventTopic
	}
	return &Orchestrator{d: d}
}

// Resolve runs the full pipeline. The returned Response is always fully
// shaped; err carries the failure classification for transport mapping.
func (o *Orchestrator) Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error) {
	start := o.d.Clock.Now()
	ctx, cancel := context.WithTimeout(ctx, o.d.ResolveTimeout)
	defer cancel()

	key, err := o.d.Admitter.Admit(ctx, req)
	if err != nil {
		metrics.ObserveAdmissionRejection(string(resolver.KindOf(err)))
		return o.fail(resolver.PlatformUnknown, resolver.ContentIdentity{}, key, start, err), err
	}

	res := o.d.Canonical.Resolve(ctx, req.URL)
	if !res.Valid {
		err := resolver.E(resolver.KindUnsupportedPlatform, res.Reason)
		if res.Platform == resolver.PlatformUnknown && res.Reason != "unsupported platform" {
			err = resolver.E(resolver.KindInvalidInput, res.Reason)
		}
		return o.fail(res.Platform, res.Identity, key, start, err), err
	}
	if !o.d.Settings.PlatformEnabled(res.Platform) {
		err := resolver.E(resolver.KindPlatformDisabled,
			fmt.Sprintf("%s resolution is temporarily disabled", res.Platform))
		return o.fail(res.Platform, res.Identity, key, start, err), err
	}
	scraper, ok := o.d.Scrapers.Get(res.Platform)
	if !ok {
		err := resolver.E(resolver.KindUnsupportedPlatform,
			fmt.Sprintf("no scraper registered for %s", res.Platform))
		return o.fail(res.Platform, res.Identity, key, start, err), err
	}

	if res.Identity.Valid() {
		if desc, err := o.d.Cache.Get(ctx, res.Identity); err == nil {
			metrics.ObserveCacheEvent("hit")
			return o.succeed(res, desc, key, start, true), nil
		} else if !errors.Is(err, resolver.ErrCacheMiss) {
			metrics.ObserveCacheEvent("degraded")
		} else {
			metrics.ObserveCacheEvent("miss")
		}
	}

	desc, err := o.scrapeLadder(ctx, scraper, res, req)
	if err != nil {
		if ctx.Err() != nil && resolver.KindOf(err) == resolver.KindScrapeFailed {
			err = resolver.Wrap(resolver.KindTimeout, "resolve timed out", err)
		}
		return o.fail(res.Platform, res.Identity, key, start, err), err
	}
	return o.succeed(res, desc, key, start, false), nil
}

// scrapeLadder runs the anonymous attempt and, when the failure looks
// auth-shaped, one credentialed retry. The caller's cookie outranks the
// pool; its health is never reported back.
func (o *Orchestrator) scrapeLadder(
	ctx context.Context,
	scraper resolver.Scraper,
	res canonical.Resolution,
	req resolver.Request,
) (*resolver.MediaDescriptor, error) {
	platform := string(res.Platform)

	if !scraper.RequiresAuth() {
		desc, err := scraper.Scrape(ctx, res.ResolvedURL, nil)
		outcome := o.d.Classifier.Classify(err)
		metrics.ObserveScrapeAttempt(platform, "anonymous", string(outcome))
		if err == nil {
			return desc, nil
		}
		if outcome != resolver.OutcomeAuthFailure || !scraper.AcceptsCredentials() {
			return nil, o.classifyFailure(outcome, err)
		}
		o.d.Logger.Debug("anonymous attempt gated, retrying with credential",
			zap.String("platform", platform),
		)
	} else if !scraper.AcceptsCredentials() {
		return nil, resolver.E(resolver.KindCredentialRequired,
			fmt.Sprintf("%s requires authentication", res.Platform))
	}

	cred, pooled, err := o.pickCredential(ctx, res.Platform, req)
	if err != nil {
		return nil, err
	}

	desc, scrapeErr := scraper.Scrape(ctx, res.ResolvedURL, cred)
	outcome := o.d.Classifier.Classify(scrapeErr)
	metrics.ObserveScrapeAttempt(platform, "credentialed", string(outcome))
	if pooled {
		if err := o.d.Pool.ReportOutcome(ctx, cred.ID, outcome, o.d.Cooldown); err != nil {
			o.d.Logger.Warn("credential outcome report failed",
				zap.String("credential_id", cred.ID),
				zap.Error(err),
			)
		}
	}
	if scrapeErr != nil {
		return nil, o.classifyCredentialedFailure(outcome, scrapeErr)
	}
	return desc, nil
}

func (o *Orchestrator) pickCredential(
	ctx context.Context,
	platform resolver.Platform,
	req resolver.Request,
) (*resolver.Credential, bool, error) {
	if !req.Cookie.IsZero() {
		secret, err := req.Cookie.Normalize()
		if err != nil {
			return nil, false, resolver.Wrap(resolver.KindInvalidInput, "cookie is malformed", err)
		}
		return &resolver.Credential{Platform: platform, Secret: secret}, false, nil
	}

	cred, err := o.d.Pool.Select(ctx, platform, resolver.TierPrivate)
	if err != nil {
		if errors.Is(err, resolver.ErrNoCredential) {
			return nil, false, resolver.Wrap(resolver.KindCredentialRequired,
				"content requires a login and no credential is available", err)
		}
		return nil, false, resolver.Wrap(resolver.KindScrapeFailed, "credential selection failed", err)
	}
	return cred, true, nil
}

func (o *Orchestrator) classifyFailure(outcome resolver.Outcome, err error) error {
	switch outcome {
	case resolver.OutcomeRateLimited:
		classified := resolver.Wrap(resolver.KindRateLimited, "platform is rate limiting requests", err)
		classified.RetryAfter = o.d.Cooldown
		return classified
	case resolver.OutcomeAuthFailure:
		return resolver.Wrap(resolver.KindCredentialRequired, "content requires a login", err)
	default:
		return resolver.Wrap(resolver.KindScrapeFailed, "media could not be resolved", err)
	}
}

func (o *Orchestrator) classifyCredentialedFailure(outcome resolver.Outcome, err error) error {
	if outcome == resolver.OutcomeAuthFailure {
		return resolver.Wrap(resolver.KindCredentialExpired, "credential was rejected by the platform", err)
	}
	return o.classifyFailure(outcome, err)
}

func (o *Orchestrator) succeed(
	res canonical.Resolution,
	desc *resolver.MediaDescriptor,
	key *resolver.APIKey,
	start time.Time,
	cached bool,
) resolver.Response {
	latency := o.d.Clock.Now().Sub(start)
	metrics.ObserveResolve(string(res.Platform), "success", cached, latency)

	if !cached && res.Identity.Valid() {
		identity, payload := res.Identity, *desc
		o.d.Tasks.Go("cache-write", func(ctx context.Context) {
			if err := o.d.Cache.Set(ctx, identity, payload); err != nil {
				metrics.ObserveBackgroundTaskFailure("cache-write")
				o.d.Logger.Warn("cache write failed", zap.String("key", identity.CacheKey()), zap.Error(err))
			}
		})
	}
	o.finishRequest(res.Platform, res.Identity, key, true, cached, desc.UsedCookie, latency, "")

	return resolver.Response{
		Success:        true,
		Platform:       res.Platform,
		Data:           desc,
		Cached:         cached,
		ResponseTimeMs: latency.Milliseconds(),
	}
}

func (o *Orchestrator) fail(
	platform resolver.Platform,
	identity resolver.ContentIdentity,
	key *resolver.APIKey,
	start time.Time,
	err error,
) resolver.Response {
	latency := o.d.Clock.Now().Sub(start)
	kind := resolver.KindOf(err)
	metrics.ObserveResolve(string(platform), string(kind), false, latency)

	o.finishRequest(platform, identity, key, false, false, false, latency, err.Error())
	o.captureFailure(platform, identity, err)

	return resolver.Response{
		Success:        false,
		Platform:       platform,
		Cached:         false,
		ResponseTimeMs: latency.Milliseconds(),
		Error:          resolver.MessageOf(err),
		RetryAfterMs:   resolver.RetryAfterOf(err).Milliseconds(),
	}
}

// finishRequest fans out the detached follow-up work common to every
// terminal result: stats, key usage, and the resolution event.
func (o *Orchestrator) finishRequest(
	platform resolver.Platform,
	identity resolver.ContentIdentity,
	key *resolver.APIKey,
	success, cached, usedCookie bool,
	latency time.Duration,
	errMsg string,
) {
	o.d.Tasks.Go("stats", func(_ context.Context) {
		o.d.Stats.RecordRequest(platform, success, latency)
		if errMsg != "" {
			o.d.Stats.RecordError(platform, errMsg)
		}
	})

	if key != nil {
		keyID := key.ID
		o.d.Tasks.Go("key-usage", func(ctx context.Context) {
			if err := o.d.Keys.RecordUsage(ctx, keyID, success); err != nil {
				metrics.ObserveBackgroundTaskFailure("key-usage")
				o.d.Logger.Warn("key usage record failed", zap.String("key_id", keyID), zap.Error(err))
			}
		})
	}

	if o.d.Publisher != nil {
		event := resolver.Event{
			Platform:   platform,
			ContentID:  identity.ContentID,
			Success:    success,
			Cached:     cached,
			UsedCookie: usedCookie,
			LatencyMs:  latency.Milliseconds(),
			At:         o.d.Clock.Now(),
		}
		o.d.Tasks.Go("publish-event", func(ctx context.Context) {
			if _, err := o.d.Publisher.Publish(ctx, o.d.Topic, event); err != nil {
				metrics.ObserveBackgroundTaskFailure("publish-event")
				o.d.Logger.Warn("event publish failed", zap.Error(err))
			}
		})
	}
}

// captureFailure archives the failure for diagnosis. Only scrape-shaped
// failures are worth keeping; admission rejections are not.
func (o *Orchestrator) captureFailure(platform resolver.Platform, identity resolver.ContentIdentity, err error) {
	if o.d.Capture == nil {
		return
	}
	kind := resolver.KindOf(err)
	switch kind {
	case resolver.KindScrapeFailed, resolver.KindCredentialExpired, resolver.KindTimeout:
	default:
		return
	}

	payload, marshalErr := json.Marshal(map[string]string{
		"platform":   string(platform),
		"content_id": identity.ContentID,
		"kind":       string(kind),
		"error":      err.Error(),
	})
	if marshalErr != nil {
		return
	}
	// Content-addressed path: repeated identical failures overwrite one
	// object instead of flooding the archive.
	digest, hashErr := sha256.New().Hash(payload)
	if hashErr != nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%s.json", o.d.CapturePrefix, platform, digest[:16])
	o.d.Tasks.Go("capture-failure", func(ctx context.Context) {
		if _, err := o.d.Capture.Put(ctx, path, "application/json", payload); err != nil {
			metrics.ObserveBackgroundTaskFailure("capture-failure")
			o.d.Logger.Warn("failure capture failed", zap.Error(err))
		}
	})
}
