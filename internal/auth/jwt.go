// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/switchboard/internal/config"
)

// Roles carried in the role claim.
const (
	RoleSubscriber = "subscriber"
	RoleService    = "service"
	RoleAdmin      = "admin"
)

// Token validation errors.
var (
	ErrMissingToken   = errors.New("auth: missing token")
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// Claims represents JWT claims
type Claims struct {
	SubscriberID int64  `json:"sid"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims grant role. Admin implies every role.
func (c *Claims) HasRole(role string) bool {
	return c.Role == role || c.Role == RoleAdmin
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a JWT manager from the security configuration.
// Returns an error if JWT_SECRET is empty.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
	}, nil
}

// GenerateToken signs a token for a subscriber. Switchboard does not issue
// tokens to end users; this exists for operators and tests.
func (m *JWTManager) GenerateToken(subscriberID int64, username, role string) (string, error) {
	return m.generate(subscriberID, username, role, time.Now(), m.ttl)
}

func (m *JWTManager) generate(subscriberID int64, username, role string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		SubscriberID: subscriberID,
		Username:     username,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subscriberID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
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

// ValidateToken validates a JWT token and extracts the claims.
// Subscriber tokens need a positive subscriber id. Service and admin
// principals may carry id 0.
//
// The returned error wraps one of ErrTokenMalformed, ErrTokenExpired or
// ErrTokenInvalid. Tokens signed with anything other than HMAC are rejected.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrTokenInvalid)
	}
	if claims.SubscriberID < 0 || (claims.SubscriberID == 0 && !claims.HasRole(RoleService)) {
		return nil, fmt.Errorf("%w: missing subscriber id", ErrTokenInvalid)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrTokenInvalid)
	}

	return claims, nil
}
