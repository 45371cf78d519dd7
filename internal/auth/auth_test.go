package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Hour, "")

	token, err := svc.GenerateToken(7, "admin")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "admin", claims.Username)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService("secret", time.Hour, "")

	t.Run("other secret", func(t *testing.T) {
		token, err := NewService("other", time.Hour, "").GenerateToken(1, "x")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := NewService("secret", -time.Minute, "").GenerateToken(1, "x")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.Error(t, err)
	})
}

func TestPasswords(t *testing.T) {
	svc := NewService("secret", time.Hour, "")

	hash, err := svc.HashPassword("hunter22")
	require.NoError(t, err)

	assert.NoError(t, svc.VerifyPassword(hash, "hunter22"))
	assert.ErrorIs(t, svc.VerifyPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestAgentKey(t *testing.T) {
	open := NewService("secret", time.Hour, "")
	assert.False(t, open.AgentKeyRequired())
	assert.True(t, open.ValidAgentKey(""))

	locked := NewService("secret", time.Hour, "k-123")
	assert.True(t, locked.AgentKeyRequired())
	assert.True(t, locked.ValidAgentKey("k-123"))
	assert.False(t, locked.ValidAgentKey("k-12"))
	assert.False(t, locked.ValidAgentKey(""))
}
