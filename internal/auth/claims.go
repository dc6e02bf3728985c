package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL applies when GenerateAccessToken is given no TTL.
	DefaultTokenTTL = 24 * time.Hour

	// Issuer is stamped on every token and required when parsing, so tokens
	// minted for another service with the same secret are rejected.
	Issuer = "neolinkd"
)

// CustomClaims extends the registered JWT claims with a role.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateAccessToken signs a token for subject with the given role.
func GenerateAccessToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrTokenInvalid)
	}
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

var parserOptions = []jwt.ParserOption{
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(Issuer),
	jwt.WithExpirationRequired(),
}

// Validate is run by the jwt parser after the registered claims pass.
func (c *CustomClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	if !IsValidRole(c.Role) {
		return fmt.Errorf("role %q", c.Role)
	}
	return nil
}

// ParseToken verifies signature, issuer and expiry and returns the claims.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, parserOptions...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
