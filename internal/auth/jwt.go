// Package auth issues and checks the API keys that gate the backend.
//
// API KEYS ARE JWTs:
// A key is an HS256-signed JWT carrying a role claim. The wishlist has no user
// accounts: anybody holding the link may edit the list, so the only role is
// "anon". The key keeps random clients off a deployed backend; it does not
// identify a person.
//
// A JWT has three base64url parts: header.payload.signature. The server can
// check a key without storing it, because only the holder of the secret can
// produce a valid signature.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAnon is the role carried by public client keys.
const RoleAnon = "anon"

const issuer = "wishlist"

// KeyService signs and validates API keys.
type KeyService struct {
	secret []byte
}

// NewKeyService creates a KeyService. The secret must be at least 16
// characters; shorter HMAC secrets are brute-forceable.
func NewKeyService(secret string) (*KeyService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: API key secret must be at least 16 characters")
	}
	return &KeyService{secret: []byte(secret)}, nil
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a key for role. A zero ttl produces a key without expiry,
// which is what a client binary ships with.
func (s *KeyService) Issue(role string, ttl time.Duration) (string, error) {
	if role == "" {
		return "", errors.New("auth: role is required")
	}

	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing key: %w", err)
	}
	return signed, nil
}

// Validate checks a key's signature, issuer and expiry and returns its role.
func (s *KeyService) Validate(key string) (string, error) {
	token, err := jwt.ParseWithClaims(
		key,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "alg: none" and RSA/HMAC confusion tricks.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: key expired")
		}
		return "", fmt.Errorf("auth: invalid key: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid key claims")
	}
	if c.Role == "" {
		return "", fmt.Errorf("auth: key has no role")
	}
	return c.Role, nil
}
