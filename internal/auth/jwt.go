package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WildcardHospital grants a service access to every hospital.
const WildcardHospital = "*"

// Claims identifies a publishing service and the hospitals it may publish for.
type Claims struct {
	Service     string   `json:"service"`
	HospitalIDs []string `json:"hospital_ids"`
	jwt.RegisteredClaims
}

// CanAccessHospital reports whether the token covers hospitalID.
func (c *Claims) CanAccessHospital(hospitalID string) bool {
	return slices.Contains(c.HospitalIDs, WildcardHospital) || slices.Contains(c.HospitalIDs, hospitalID)
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a service token scoped to hospitalIDs
func (tm *TokenManager) GenerateToken(service string, hospitalIDs []string) (string, error) {
	if service == "" {
		return "", errors.New("service name is required")
	}
	now := time.Now()
	claims := &Claims{
		Service:     service,
		HospitalIDs: hospitalIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			Subject:   service,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.Service == "" {
		return nil, errors.New("token has no service claim")
	}

	return claims, nil
}
