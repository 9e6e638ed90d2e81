package revocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/testutils"
)

var issuedAt = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	gormStore, err := NewGormStore(testutils.SetupTestDB(t))
	require.NoError(t, err)
	return map[string]Store{
		"memory":   NewMemoryStore(),
		"database": gormStore,
	}
}

func TestStores(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			expiresAt := issuedAt.Add(24 * time.Hour)

			revoked, err := store.IsRevoked(ctx, "a1", issuedAt)
			require.NoError(t, err)
			assert.False(t, revoked)

			require.NoError(t, store.Revoke(ctx, "a1", expiresAt))
			require.NoError(t, store.Revoke(ctx, "a1", expiresAt))

			revoked, err = store.IsRevoked(ctx, "a1", issuedAt.Add(time.Hour))
			require.NoError(t, err)
			assert.True(t, revoked)

			revoked, err = store.IsRevoked(ctx, "a2", issuedAt.Add(time.Hour))
			require.NoError(t, err)
			assert.False(t, revoked)

			revoked, err = store.IsRevoked(ctx, "a1", expiresAt)
			require.NoError(t, err)
			assert.False(t, revoked)

			require.NoError(t, store.Revoke(ctx, "a2", issuedAt.Add(48*time.Hour)))

			removed, err := store.DeleteExpired(ctx, expiresAt)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			revoked, err = store.IsRevoked(ctx, "a2", expiresAt)
			require.NoError(t, err)
			assert.True(t, revoked)
		})
	}
}

func TestProvideStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{JWT: config.JWTConfig{RevocationStore: "memory"}}

		store, err := ProvideStore(cfg, nil)

		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("database", func(t *testing.T) {
		db := testutils.SetupTestDB(t)
		cfg := &config.Config{JWT: config.JWTConfig{RevocationStore: "database"}}

		store, err := ProvideStore(cfg, db)

		require.NoError(t, err)
		assert.IsType(t, &GormStore{}, store)
		assert.True(t, db.Migrator().HasTable("revoked_tokens"))
	})

	t.Run("database without a connection", func(t *testing.T) {
		cfg := &config.Config{JWT: config.JWTConfig{RevocationStore: "database"}}

		_, err := ProvideStore(cfg, nil)

		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := &config.Config{JWT: config.JWTConfig{RevocationStore: "redis"}}

		_, err := ProvideStore(cfg, nil)

		assert.ErrorContains(t, err, "unsupported revocation store type: redis")
	})
}
