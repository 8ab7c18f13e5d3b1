package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	start := time.Now()

	token, err := tm.GenerateToken("ipd-service", []string{"H1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
	assert.Equal(t, "ipd-service", claims.Service)
	assert.Equal(t, []string{"H1"}, claims.HospitalIDs)
}

func TestTokenManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewTokenManager("other-secret", time.Hour).GenerateToken("opd-service", []string{"H1"})
	require.NoError(t, err)

	_, err = NewTokenManager("test-secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	claims := &Claims{
		Service: "opd-service",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RequiresService(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, err := tm.GenerateToken("", []string{"H1"})
	assert.Error(t, err)
}

func TestClaims_CanAccessHospital(t *testing.T) {
	scoped := &Claims{Service: "ipd", HospitalIDs: []string{"H1", "H2"}}
	assert.True(t, scoped.CanAccessHospital("H1"))
	assert.False(t, scoped.CanAccessHospital("H3"))

	global := &Claims{Service: "ops", HospitalIDs: []string{WildcardHospital}}
	assert.True(t, global.CanAccessHospital("H3"))

	none := &Claims{Service: "ipd"}
	assert.False(t, none.CanAccessHospital("H1"))
}
