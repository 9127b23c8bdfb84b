package domain

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvitation(t *testing.T, now time.Time) *Invitation {
	t.Helper()
	inv, err := NewInvitation(1, "ana@example.com", RoleManager, uuid.New(), 0, now)
	require.NoError(t, err)
	return inv
}

func TestNewInvitation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := newTestInvitation(t, now)

	raw, err := base64.RawURLEncoding.DecodeString(inv.Token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, now.Add(DefaultInvitationTTL), inv.ExpiresAt)
	assert.Equal(t, InvitationStatePending, inv.State(now))

	other := newTestInvitation(t, now)
	assert.NotEqual(t, inv.Token, other.Token)

	_, err = NewInvitation(1, "ana@example.com", Role(8), uuid.New(), time.Hour, now)
	assert.Error(t, err)
}

func TestInvitationValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending", func(t *testing.T) {
		assert.NoError(t, newTestInvitation(t, now).Validate(now.Add(time.Hour)))
	})

	t.Run("expired", func(t *testing.T) {
		inv := newTestInvitation(t, now)
		assert.ErrorIs(t, inv.Validate(inv.ExpiresAt), ErrInvitationInvalid)
	})

	t.Run("revoked wins over expired", func(t *testing.T) {
		inv := newTestInvitation(t, now)
		_, err := inv.Revoke(now)
		require.NoError(t, err)
		assert.Equal(t, InvitationStateRevoked, inv.State(inv.ExpiresAt.Add(time.Hour)))
		assert.ErrorIs(t, inv.Validate(now), ErrInvitationInvalid)
	})

	t.Run("accepted", func(t *testing.T) {
		inv := newTestInvitation(t, now)
		require.NoError(t, inv.Accept(uuid.New(), now))
		assert.Equal(t, InvitationStateAccepted, inv.State(now))
		assert.ErrorIs(t, inv.Accept(uuid.New(), now), ErrInvitationInvalid)
	})
}

func TestInvitationRevoke(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inv := newTestInvitation(t, now)
	changed, err := inv.Revoke(now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, inv.DomainEvents(), 1)

	changed, err = inv.Revoke(now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, inv.DomainEvents(), 1)

	accepted := newTestInvitation(t, now)
	require.NoError(t, accepted.Accept(uuid.New(), now))
	_, err = accepted.Revoke(now)
	assert.ErrorIs(t, err, ErrInvitationNotPending)

	expired := newTestInvitation(t, now)
	_, err = expired.Revoke(expired.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrInvitationNotPending)
}
