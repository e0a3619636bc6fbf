package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"mediaresolver/internal/resolver"
)

func credentialRows(creds ...resolver.Credential) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "platform", "tier", "secret", "status",
		"cooldown_until", "last_error", "last_used", "created_at",
	})
	for _, c := range creds {
		rows.AddRow(
			c.ID, string(c.Platform), string(c.Tier), c.Secret, string(c.Status),
			c.CooldownUntil, c.LastError, c.LastUsed, c.CreatedAt,
		)
	}
	return rows
}

func TestPostgresStoreListFiltersByPlatform(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM credentials WHERE platform").
		WithArgs("instagram").
		WillReturnRows(credentialRows(resolver.Credential{
			ID: "c1", Platform: resolver.PlatformInstagram,
			Tier: resolver.TierPrivate, Secret: "sessionid=abc",
			Status: resolver.StatusHealthy, LastUsed: now, CreatedAt: now,
		}))

	creds, err := store.List(context.Background(), resolver.PlatformInstagram)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.Equal(t, resolver.TierPrivate, creds[0].Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM credentials WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreSaveUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	cred := resolver.Credential{
		ID: "c1", Platform: resolver.PlatformTikTok, Tier: resolver.TierPublic,
		Secret: "sid=1", Status: resolver.StatusCooldown,
		CooldownUntil: &now, LastError: "rate limited by platform",
		LastUsed: now, CreatedAt: now,
	}
	mock.ExpectExec("INSERT INTO credentials").
		WithArgs(
			cred.ID, "tiktok", "public", cred.Secret, "cooldown",
			cred.CooldownUntil, cred.LastError, cred.LastUsed, cred.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), cred))
	require.NoError(t, mock.ExpectationsWereMet())
}
