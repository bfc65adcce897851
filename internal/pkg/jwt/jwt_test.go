package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken(42, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)
}

func TestTokenRejectsExpiredAndAnonymous(t *testing.T) {
	secret := []byte("secret")
	expired, err := GenerateToken(1, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.Error(t, err)

	anon, err := GenerateToken(0, secret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(anon, secret)
	require.Error(t, err)
}
