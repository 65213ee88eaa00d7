// Package identity issues the registration tokens that bind a validated
// wallet address to the HTTP client that proved ownership of it.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RegistrationClaims are the JWT claims of a registration token. The subject
// is the wallet address.
type RegistrationClaims struct {
	jwt.RegisteredClaims
	RequestTimestamp int64 `json:"request_ts"`
}

// Address returns the wallet address the token was issued for.
func (c *RegistrationClaims) Address() string { return c.Subject }

// TokenIssuer issues and verifies registration tokens signed with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer creates a TokenIssuer. An empty secret is replaced by 32
// random bytes, which makes tokens valid only for the life of the process.
func NewTokenIssuer(secret []byte, issuer string) (*TokenIssuer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	if issuer == "" {
		issuer = "starnotary"
	}
	return &TokenIssuer{secret: secret, issuer: issuer}, nil
}

// Issue signs a token for address that expires after ttl.
func (t *TokenIssuer) Issue(address string, requestTimestamp int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	claims := RegistrationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		RequestTimestamp: requestTimestamp,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a registration token.
func (t *TokenIssuer) Verify(tokenStr string) (*RegistrationClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&RegistrationClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*RegistrationClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
