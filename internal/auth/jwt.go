// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package auth provides JWT-based authentication for chatd.
//
// The marketplace's main application issues the tokens; chatd only verifies
// them. A token carries the participant's ID and marketplace role (vendor or
// client), which together form the models.Identity used for room addressing.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/venuelink/chatd/internal/config"
	"github.com/venuelink/chatd/internal/models"
)

// ErrInvalidToken is returned when a token fails signature or claims checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims chatd understands.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token creation and validation.
// Uses HMAC-SHA256 signing; the secret is shared with the token issuer.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager creates a JWT manager with the configured secret and timeout.
// Returns an error if the secret is empty.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	return &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: cfg.SessionTimeout,
	}, nil
}

// GenerateToken creates a signed token for a marketplace participant.
// Primarily used by tests and local tooling; production tokens come from the
// main marketplace application with the same secret.
func (m *JWTManager) GenerateToken(identity models.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: identity.ID,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyToken validates a token string and returns the authenticated identity.
//
// Validation covers signature, expiration, NotBefore, and the signing
// algorithm (rejecting anything but HMAC prevents algorithm confusion
// attacks). The role claim must be one of the two marketplace sides.
func (m *JWTManager) VerifyToken(tokenString string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Identity{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	identity := models.Identity{
		ID:   claims.UserID,
		Role: models.Role(claims.Role),
	}
	if identity.ID == "" {
		return models.Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if !identity.Role.Valid() {
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return identity, nil
}
