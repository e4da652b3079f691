package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	hash := HashPassword("hunter2hunter2", salt)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "hunter2hunter2", hash)

	// Deterministic for the same salt, different for another.
	assert.Equal(t, hash, HashPassword("hunter2hunter2", salt))
	other, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, hash, HashPassword("hunter2hunter2", other))
}

func TestCheckPassword(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	hash := HashPassword("correct horse", salt)

	assert.True(t, CheckPassword("correct horse", salt, hash))
	assert.False(t, CheckPassword("wrong horse", salt, hash))
	assert.False(t, CheckPassword("correct horse", "wrong-salt", hash))
}

func TestNewSaltIsUnique(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}

func TestNewToken(t *testing.T) {
	a := NewToken()
	b := NewToken()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
}
