package keys

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"mediaresolver/internal/resolver"
)

func TestMemoryStoreValidate(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]resolver.APIKey{
		"good": {ID: "key-1", Status: resolver.APIKeyActive, Tier: "pro"},
		"off":  {ID: "key-2", Status: resolver.APIKeyDisabled},
	})

	key, err := store.Validate(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "key-1", key.ID)

	_, err = store.Validate(context.Background(), "off")
	require.ErrorIs(t, err, resolver.ErrKeyInvalid)

	_, err = store.Validate(context.Background(), "unknown")
	require.ErrorIs(t, err, resolver.ErrKeyInvalid)
}

func TestMemoryStoreRecordsUsageRegardlessOfOutcome(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(nil)
	require.NoError(t, store.RecordUsage(context.Background(), "key-1", true))
	require.NoError(t, store.RecordUsage(context.Background(), "key-1", false))

	usage := store.UsageFor("key-1")
	require.Equal(t, int64(2), usage.Total)
	require.Equal(t, int64(1), usage.Succeeded)
}

func TestPostgresStoreValidate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, status, tier, quota FROM api_keys").
		WithArgs("good").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "tier", "quota"}).
			AddRow("key-1", "active", "pro", int64(1000)))

	key, err := store.Validate(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "key-1", key.ID)
	require.Equal(t, resolver.APIKeyActive, key.Status)

	mock.ExpectQuery("SELECT id, status, tier, quota FROM api_keys").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Validate(context.Background(), "missing")
	require.ErrorIs(t, err, resolver.ErrKeyInvalid)
}

func TestPostgresStoreRecordUsage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE api_keys SET uses").
		WithArgs("key-1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordUsage(context.Background(), "key-1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}
