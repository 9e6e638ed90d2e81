package revocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/payslip-auth/testutils"
)

func newTestService(t *testing.T) (*Service, *testutils.Clock) {
	t.Helper()
	store, err := NewGormStore(testutils.SetupTestDB(t))
	require.NoError(t, err)

	clock := testutils.NewClock(issuedAt)
	service := NewService(store, nil)
	service.SetClock(clock.Now)
	return service, clock
}

func TestService_RevokeToken(t *testing.T) {
	t.Run("revoked until expiry", func(t *testing.T) {
		service, clock := newTestService(t)

		require.NoError(t, service.RevokeToken(t.Context(), "6f1c", issuedAt.Add(time.Hour)))

		revoked, err := service.IsTokenRevoked(t.Context(), "6f1c")
		require.NoError(t, err)
		assert.True(t, revoked)

		clock.Advance(time.Hour)
		revoked, err = service.IsTokenRevoked(t.Context(), "6f1c")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("already expired tokens are skipped", func(t *testing.T) {
		service, _ := newTestService(t)

		require.NoError(t, service.RevokeToken(t.Context(), "6f1c", issuedAt.Add(-time.Minute)))

		removed, err := service.CleanupExpired(t.Context())
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("id required", func(t *testing.T) {
		service, _ := newTestService(t)

		assert.ErrorIs(t, service.RevokeToken(t.Context(), "", issuedAt.Add(time.Hour)), ErrMissingTokenID)
		_, err := service.IsTokenRevoked(t.Context(), "")
		assert.ErrorIs(t, err, ErrMissingTokenID)
	})
}

func TestService_CleanupExpired(t *testing.T) {
	service, clock := newTestService(t)
	require.NoError(t, service.RevokeToken(t.Context(), "short", issuedAt.Add(time.Hour)))
	require.NoError(t, service.RevokeToken(t.Context(), "long", issuedAt.Add(24*time.Hour)))

	clock.Advance(2 * time.Hour)
	removed, err := service.CleanupExpired(t.Context())

	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	revoked, err := service.IsTokenRevoked(t.Context(), "long")
	require.NoError(t, err)
	assert.True(t, revoked)
}
