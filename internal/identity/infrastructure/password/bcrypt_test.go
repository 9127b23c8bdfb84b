package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	ok, err := h.Matches(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Matches(hash, "wrong horse")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Matches("not-a-hash", "x")
	assert.Error(t, err)
}

func TestNewHasher_DefaultCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}
