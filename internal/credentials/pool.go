// Package credentials implements the platform credential pool: selection
// with tier fallback, LRU spread, and the per-credential health state
// machine. Cooldown expiry is pull-based: eligibility is re-checked at
// selection time, there is no background sweep.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediaresolver/internal/metrics"
	"mediaresolver/internal/resolver"
)

// DefaultBackoff is applied when a rate-limited outcome carries no
// explicit backoff.
const DefaultBackoff = 30 * time.Second

// Store persists credential records for the pool.
type Store interface {
	List(ctx context.Context, platform resolver.Platform) ([]resolver.Credential, error)
	Get(ctx context.Context, id string) (resolver.Credential, error)
	Save(ctx context.Context, cred resolver.Credential) error
}

// Pool owns credential status transitions. Callers only report outcomes;
// the state machine is monotonically degrading and self-heals via
// cooldown expiry, so a lost update between concurrent reports is
// harmless.
type Pool struct {
	store  Store
	clock  resolver.Clock
	idGen  resolver.IDGenerator
	logger *zap.Logger

	// One lock per platform so unrelated platforms never serialize.
	locks map[resolver.Platform]*sync.Mutex
}

// NewPool constructs a Pool.
func NewPool(store Store, clock resolver.Clock, idGen resolver.IDGenerator, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := make(map[resolver.Platform]*sync.Mutex, len(resolver.Platforms()))
	for _, p := range resolver.Platforms() {
		locks[p] = &sync.Mutex{}
	}
	// Unknown platforms share one lock; selection for them fails anyway.
	locks[resolver.PlatformUnknown] = &sync.Mutex{}
	return &Pool{
		store:  store,
		clock:  clock,
		idGen:  idGen,
		logger: logger,
		locks:  locks,
	}
}

func (p *Pool) lock(platform resolver.Platform) *sync.Mutex {
	if mu, ok := p.locks[platform]; ok {
		return mu
	}
	return p.locks[resolver.PlatformUnknown]
}

// Select returns a usable credential for the platform, preferring the
// requested tier and falling back to the other tier when exhausted.
// Eligible candidates are spread least-recently-used first.
func (p *Pool) Select(ctx context.Context, platform resolver.Platform, tier resolver.CredentialTier) (*resolver.Credential, error) {
	mu := p.lock(platform)
	mu.Lock()
	defer mu.Unlock()

	creds, err := p.store.List(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	now := p.clock.Now()

	var inTier, otherTier []resolver.Credential
	for _, cred := range creds {
		if !eligible(cred, now) {
			continue
		}
		if cred.Tier == tier {
			inTier = append(inTier, cred)
		} else {
			otherTier = append(otherTier, cred)
		}
	}
	candidates := inTier
	if len(candidates) == 0 {
		candidates = otherTier
	}
	if len(candidates) == 0 {
		return nil, resolver.ErrNoCredential
	}

	chosen := candidates[0]
	for _, cred := range candidates[1:] {
		if cred.LastUsed.Before(chosen.LastUsed) {
			chosen = cred
		}
	}
	chosen.LastUsed = now
	if err := p.store.Save(ctx, chosen); err != nil {
		return nil, fmt.Errorf("touch credential: %w", err)
	}
	return &chosen, nil
}

func eligible(cred resolver.Credential, now time.Time) bool {
	switch cred.Status {
	case resolver.StatusHealthy:
		return true
	case resolver.StatusCooldown:
		return cred.CooldownUntil != nil && !now.Before(*cred.CooldownUntil)
	default:
		return false
	}
}

// ReportOutcome applies one state transition for a scrape outcome:
//
//	healthy  --success-->     healthy
//	cooldown --success-->     healthy (lazy recovery)
//	healthy|cooldown --rateLimited--> cooldown(now+backoff)
//	healthy|cooldown --authFailure--> expired (manual reset required)
//
// Expired and disabled credentials never transition here.
func (p *Pool) ReportOutcome(ctx context.Context, credentialID string, outcome resolver.Outcome, backoff time.Duration) error {
	cred, err := p.store.Get(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	mu := p.lock(cred.Platform)
	mu.Lock()
	defer mu.Unlock()

	if cred.Status == resolver.StatusExpired || cred.Status == resolver.StatusDisabled {
		return nil
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	prev := cred.Status

	switch outcome {
	case resolver.OutcomeSuccess:
		cred.Status = resolver.StatusHealthy
		cred.CooldownUntil = nil
		cred.LastError = ""
	case resolver.OutcomeRateLimited:
		until := p.clock.Now().Add(backoff)
		cred.Status = resolver.StatusCooldown
		cred.CooldownUntil = &until
		cred.LastError = "rate limited by platform"
	case resolver.OutcomeAuthFailure:
		cred.Status = resolver.StatusExpired
		cred.CooldownUntil = nil
		cred.LastError = "authentication rejected by platform"
		p.logger.Warn("credential expired",
			zap.String("credential_id", cred.ID),
			zap.String("platform", string(cred.Platform)),
		)
	case resolver.OutcomeGenericError:
		cred.LastError = "scrape failed"
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	if err := p.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if cred.Status != prev {
		metrics.ObserveCredentialTransition(string(cred.Platform), string(cred.Status))
	}
	return nil
}

// Add registers a new credential from caller-normalized cookie material.
func (p *Pool) Add(ctx context.Context, platform resolver.Platform, tier resolver.CredentialTier, input resolver.CredentialInput) (resolver.Credential, error) {
	secret, err := input.Normalize()
	if err != nil {
		return resolver.Credential{}, fmt.Errorf("normalize cookie input: %w", err)
	}
	id, err := p.idGen.NewID()
	if err != nil {
		return resolver.Credential{}, fmt.Errorf("generate credential id: %w", err)
	}
	now := p.clock.Now()
	cred := resolver.Credential{
		ID:        id,
		Platform:  platform,
		Tier:      tier,
		Secret:    secret,
		Status:    resolver.StatusHealthy,
		CreatedAt: now,
	}
	if err := p.store.Save(ctx, cred); err != nil {
		return resolver.Credential{}, fmt.Errorf("save credential: %w", err)
	}
	return cred, nil
}

// Reset manually re-enables a credential (the only way out of expired).
func (p *Pool) Reset(ctx context.Context, credentialID string) error {
	return p.force(ctx, credentialID, resolver.StatusHealthy)
}

// Disable takes a credential out of rotation permanently (operator action).
func (p *Pool) Disable(ctx context.Context, credentialID string) error {
	return p.force(ctx, credentialID, resolver.StatusDisabled)
}

func (p *Pool) force(ctx context.Context, credentialID string, status resolver.CredentialStatus) error {
	cred, err := p.store.Get(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	mu := p.lock(cred.Platform)
	mu.Lock()
	defer mu.Unlock()

	prev := cred.Status
	cred.Status = status
	cred.CooldownUntil = nil
	cred.LastError = ""
	if err := p.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if status != prev {
		metrics.ObserveCredentialTransition(string(cred.Platform), string(status))
	}
	return nil
}

// List exposes the pool contents for the admin surface. Secrets are
// excluded from serialization at the type level.
func (p *Pool) List(ctx context.Context, platform resolver.Platform) ([]resolver.Credential, error) {
	creds, err := p.store.List(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}
