package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Sign("user-1", "ed@example.com", "editor", true)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "editor", claims.Role)
	assert.True(t, claims.CanTriggerIngestion)
	assert.Equal(t, "ed@example.com", claims.Email)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Minute)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Sign("user-1", "", "viewer", false)
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewIssuer("secret-a", time.Hour)
	b, _ := NewIssuer("secret-b", time.Hour)

	token, err := a.Sign("user-1", "", "admin", true)
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("  ", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
