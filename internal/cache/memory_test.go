package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mediaresolver/internal/resolver"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSettings struct {
	ttl map[resolver.Platform]time.Duration
}

func (s *fakeSettings) PlatformEnabled(resolver.Platform) bool { return true }
func (s *fakeSettings) MaintenanceMode() bool                  { return false }
func (s *fakeSettings) GlobalRateLimit() (int, time.Duration)  { return 100, time.Minute }
func (s *fakeSettings) CacheTTL(p resolver.Platform) time.Duration {
	return s.ttl[p]
}

func identity(platform resolver.Platform, id string) resolver.ContentIdentity {
	return resolver.ContentIdentity{Platform: platform, ContentID: id}
}

func TestMemorySetThenGetUntilTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	settings := &fakeSettings{ttl: map[resolver.Platform]time.Duration{
		resolver.PlatformTikTok: 10 * time.Second,
	}}
	c := NewMemory(settings, clock)

	id := identity(resolver.PlatformTikTok, "123")
	desc := resolver.MediaDescriptor{Title: "clip"}
	require.NoError(t, c.Set(context.Background(), id, desc))

	got, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "clip", got.Title)

	clock.Advance(9 * time.Second)
	_, err = c.Get(context.Background(), id)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = c.Get(context.Background(), id)
	require.ErrorIs(t, err, resolver.ErrCacheMiss)
}

func TestMemoryOverwriteReplacesEntry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	c := NewMemory(&fakeSettings{}, clock)

	id := identity(resolver.PlatformYouTube, "abc")
	require.NoError(t, c.Set(context.Background(), id, resolver.MediaDescriptor{Title: "old"}))
	require.NoError(t, c.Set(context.Background(), id, resolver.MediaDescriptor{Title: "new"}))

	got, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)
}

func TestMemoryInvalidIdentitySkipsCaching(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	c := NewMemory(&fakeSettings{}, clock)

	require.NoError(t, c.Set(context.Background(), resolver.ContentIdentity{}, resolver.MediaDescriptor{Title: "x"}))
	_, err := c.Get(context.Background(), resolver.ContentIdentity{})
	require.ErrorIs(t, err, resolver.ErrCacheMiss)
}

func TestMemoryClearByPlatformPrefix(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	c := NewMemory(&fakeSettings{}, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, identity(resolver.PlatformTikTok, "1"), resolver.MediaDescriptor{}))
	require.NoError(t, c.Set(ctx, identity(resolver.PlatformTikTok, "2"), resolver.MediaDescriptor{}))
	require.NoError(t, c.Set(ctx, identity(resolver.PlatformYouTube, "3"), resolver.MediaDescriptor{}))

	removed, err := c.Clear(ctx, resolver.PlatformTikTok)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = c.Get(ctx, identity(resolver.PlatformYouTube, "3"))
	require.NoError(t, err)

	removed, err = c.Clear(ctx, resolver.PlatformUnknown)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestDefaultTTLTable(t *testing.T) {
	t.Parallel()

	require.Equal(t, 72*time.Hour, DefaultTTL(resolver.PlatformYouTube))
	require.Equal(t, 30*time.Minute, DefaultTTL(resolver.PlatformInstagram))
	require.Equal(t, 10*time.Second, ttlFor(&fakeSettings{ttl: map[resolver.Platform]time.Duration{
		resolver.PlatformYouTube: 10 * time.Second,
	}}, resolver.PlatformYouTube))
	require.Equal(t, 72*time.Hour, ttlFor(nil, resolver.PlatformTwitter))
}

func TestNoopAlwaysMisses(t *testing.T) {
	t.Parallel()

	c := NewNoop()
	id := identity(resolver.PlatformTikTok, "1")
	require.NoError(t, c.Set(context.Background(), id, resolver.MediaDescriptor{}))
	_, err := c.Get(context.Background(), id)
	require.ErrorIs(t, err, resolver.ErrCacheMiss)
	removed, err := c.Clear(context.Background(), resolver.PlatformUnknown)
	require.NoError(t, err)
	require.Zero(t, removed)
}
