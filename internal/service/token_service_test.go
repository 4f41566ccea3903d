package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

func newTestTokenService() *TokenService {
	return NewTokenService(TokenConfig{Secret: "test-secret", Issuer: "maap", Audience: []string{"maap-api"}})
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := newTestTokenService()
	token, err := svc.IssueToken(models.JWTClaims{
		UserID:         "user-1",
		TeammateID:     "tm-1",
		OrganizationID: "org-1",
		Role:           models.RoleManager,
	}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tm-1", claims.TeammateID)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, models.RoleManager, claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := newTestTokenService()

	expired, err := svc.IssueToken(models.JWTClaims{TeammateID: "tm-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	foreign, err := NewTokenService(TokenConfig{Secret: "other", Issuer: "maap", Audience: []string{"maap-api"}}).
		IssueToken(models.JWTClaims{TeammateID: "tm-1"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongAudience, err := NewTokenService(TokenConfig{Secret: "test-secret", Issuer: "maap", Audience: []string{"billing"}}).
		IssueToken(models.JWTClaims{TeammateID: "tm-1"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongAudience)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	anonymous, err := svc.IssueToken(models.JWTClaims{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(anonymous)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{TeammateID: "tm-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(none)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
