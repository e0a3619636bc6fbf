package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediaresolver/internal/resolver"
)

func newPostgresForTest(t *testing.T, clock resolver.Clock) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostgresWithPool(mock, "media_cache", &fakeSettings{}, clock, zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestPostgresGetReturnsLiveEntry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, mock := newPostgresForTest(t, &fakeClock{now: now})

	id := identity(resolver.PlatformYouTube, "dQw4w9WgXcQ")
	mock.ExpectQuery("SELECT value FROM media_cache").
		WithArgs(id.CacheKey(), now).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).
			AddRow([]byte(`{"title":"never gonna","formats":[]}`)))

	desc, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "never gonna", desc.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissOnNoRows(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, mock := newPostgresForTest(t, &fakeClock{now: now})

	id := identity(resolver.PlatformYouTube, "missing")
	mock.ExpectQuery("SELECT value FROM media_cache").
		WithArgs(id.CacheKey(), now).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), id)
	require.ErrorIs(t, err, resolver.ErrCacheMiss)
}

func TestPostgresGetDegradesToMissOnStoreError(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, mock := newPostgresForTest(t, &fakeClock{now: now})

	id := identity(resolver.PlatformTikTok, "1")
	mock.ExpectQuery("SELECT value FROM media_cache").
		WithArgs(id.CacheKey(), now).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Get(context.Background(), id)
	require.ErrorIs(t, err, resolver.ErrCacheMiss)
}

func TestPostgresSetUpserts(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, mock := newPostgresForTest(t, &fakeClock{now: now})

	id := identity(resolver.PlatformYouTube, "abc123xyz90")
	mock.ExpectExec("INSERT INTO media_cache").
		WithArgs(id.CacheKey(), pgxmock.AnyArg(), now.Add(72*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), id, resolver.MediaDescriptor{Title: "t"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetSwallowsStoreError(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, mock := newPostgresForTest(t, &fakeClock{now: now})

	id := identity(resolver.PlatformYouTube, "abc123xyz90")
	mock.ExpectExec("INSERT INTO media_cache").
		WithArgs(id.CacheKey(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, store.Set(context.Background(), id, resolver.MediaDescriptor{Title: "t"}))
}

func TestPostgresClearDeletesByPrefix(t *testing.T) {
	t.Parallel()

	store, mock := newPostgresForTest(t, &fakeClock{now: time.Unix(1700000000, 0).UTC()})

	mock.ExpectExec("DELETE FROM media_cache").
		WithArgs("result:tiktok:%").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := store.Clear(context.Background(), resolver.PlatformTikTok)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	mock.ExpectExec("DELETE FROM media_cache").
		WithArgs("result:%").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	removed, err = store.Clear(context.Background(), resolver.PlatformUnknown)
	require.NoError(t, err)
	require.Equal(t, 7, removed)
}

func TestPostgresRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(mock, "media cache; drop", &fakeSettings{}, &fakeClock{}, zap.NewNop())
	require.Error(t, err)
}
