// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSystemToken is returned when a service token fails verification.
var ErrInvalidSystemToken = errors.New("identity: invalid system token")

// SystemClaims are the claims carried by a service-to-service token.
type SystemClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// SystemVerifier mints and verifies HS256 service tokens. Holders act
// with full system authority, so the secret must be long and private.
type SystemVerifier struct {
	secret []byte
	ttl    time.Duration
}

// NewSystemVerifier builds a verifier from the shared secret.
// Returns nil when secret is empty (system callers disabled).
func NewSystemVerifier(secret string, ttl time.Duration) (*SystemVerifier, error) {
	if secret == "" {
		return nil, nil
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("system secret must be at least 32 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SystemVerifier{secret: []byte(secret), ttl: ttl}, nil
}

// Mint signs a token identifying the named internal service.
func (v *SystemVerifier) Mint(service string) (string, error) {
	now := time.Now()
	claims := &SystemClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "system:" + service,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign system token: %w", err)
	}
	return signed, nil
}

// Verify parses a presented token and returns its claims.
// Only HS256 is accepted; anything else is rejected outright.
func (v *SystemVerifier) Verify(tokenString string) (*SystemClaims, error) {
	if v == nil {
		return nil, ErrInvalidSystemToken
	}

	claims := &SystemClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSystemToken, err)
	}
	if !token.Valid || claims.Service == "" {
		return nil, ErrInvalidSystemToken
	}

	return claims, nil
}
