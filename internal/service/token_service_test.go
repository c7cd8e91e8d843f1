package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "church-identity"})
	token, err := svc.Sign(models.JWTClaims{UserID: "u1", Role: models.RoleTribeManager, EntityID: "t1"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTribeManager, claims.Role)
	assert.Equal(t, "t1", claims.EntityID)
	assert.Equal(t, "u1", claims.Subject)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "church-identity"})

	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "church-identity"})
	forged, err := other.Sign(models.JWTClaims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	foreign := NewTokenService(TokenConfig{Secret: "secret", Issuer: "someone-else"})
	token, err := foreign.Sign(models.JWTClaims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	expired, err := svc.Sign(models.JWTClaims{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
