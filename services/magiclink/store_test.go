package magiclink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/payslip-auth/testutils"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newStoreRecord(email, secret string, createdAt time.Time, ttl time.Duration) *MagicLinkToken {
	return &MagicLinkToken{
		Email:     email,
		TokenHash: HashSecret(secret),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
}

func TestGormStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutils.SetupTestDB(t, &MagicLinkToken{}))

	live := newStoreRecord("jane@example.com", "live", t0, 15*time.Minute)
	expired := newStoreRecord("jane@example.com", "expired", t0.Add(-time.Hour), 15*time.Minute)
	used := newStoreRecord("jane@example.com", "used", t0, 15*time.Minute)
	other := newStoreRecord("john@example.com", "other", t0, 15*time.Minute)

	for _, record := range []*MagicLinkToken{live, expired, used, other} {
		require.NoError(t, store.Create(ctx, record))
		assert.NotZero(t, record.ID)
	}

	ok, err := store.MarkUsed(ctx, used.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("active excludes used and expired", func(t *testing.T) {
		active, err := store.FindActiveByEmail(ctx, "jane@example.com", t0.Add(time.Minute))

		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, live.ID, active[0].ID)
	})

	t.Run("active is empty once expired", func(t *testing.T) {
		active, err := store.FindActiveByEmail(ctx, "jane@example.com", t0.Add(15*time.Minute))

		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("by email and hash", func(t *testing.T) {
		found, err := store.FindByEmailAndHash(ctx, "jane@example.com", HashSecret("used"))

		require.NoError(t, err)
		assert.True(t, found.Used)
		require.NotNil(t, found.UsedAt)
		assert.True(t, found.UsedAt.Equal(t0.Add(time.Minute)))

		_, err = store.FindByEmailAndHash(ctx, "john@example.com", HashSecret("used"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("count by email", func(t *testing.T) {
		count, err := store.CountByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		count, err = store.CountByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestGormStore_MarkUsed(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutils.SetupTestDB(t, &MagicLinkToken{}))

	record := newStoreRecord("jane@example.com", "secret", t0, 15*time.Minute)
	require.NoError(t, store.Create(ctx, record))

	t.Run("refuses expired rows", func(t *testing.T) {
		ok, err := store.MarkUsed(ctx, record.ID, t0.Add(15*time.Minute))

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("first call wins", func(t *testing.T) {
		ok, err := store.MarkUsed(ctx, record.ID, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkUsed(ctx, record.ID, t0.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := store.FindByEmailAndHash(ctx, "jane@example.com", HashSecret("secret"))
		require.NoError(t, err)
		assert.True(t, found.UsedAt.Equal(t0.Add(time.Minute)))
	})

	t.Run("unknown id", func(t *testing.T) {
		ok, err := store.MarkUsed(ctx, 4242, t0)

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGormStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutils.SetupTestDB(t, &MagicLinkToken{}))

	live := newStoreRecord("jane@example.com", "live", t0, 15*time.Minute)
	lapsed := newStoreRecord("jane@example.com", "lapsed", t0.Add(-time.Hour), 15*time.Minute)
	consumed := newStoreRecord("jane@example.com", "consumed", t0.Add(-5*time.Minute), 15*time.Minute)
	for _, record := range []*MagicLinkToken{live, lapsed, consumed} {
		require.NoError(t, store.Create(ctx, record))
	}
	ok, err := store.MarkUsed(ctx, consumed.ID, t0.Add(-4*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := store.DeleteExpired(ctx, t0)

	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err := store.CountByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.FindByEmailAndHash(ctx, "jane@example.com", HashSecret("live"))
	assert.NoError(t, err)
}
