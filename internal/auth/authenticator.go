// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSubscriberInactive is returned when the token names an unknown or deactivated subscriber.
var ErrSubscriberInactive = errors.New("auth: subscriber unknown or inactive")

// SubscriberChecker reports whether a subscriber exists and is active.
type SubscriberChecker interface {
	IsActiveSubscriber(ctx context.Context, subscriberID int64) (bool, error)
}

// Authenticator runs the complete credential check for a connection or request.
type Authenticator struct {
	jwt         *JWTManager
	revocations RevocationStore
	subscribers SubscriberChecker
}

// NewAuthenticator creates an Authenticator. revocations and subscribers may be nil,
// in which case those checks are skipped.
func NewAuthenticator(jwt *JWTManager, revocations RevocationStore, subscribers SubscriberChecker) *Authenticator {
	return &Authenticator{
		jwt:         jwt,
		revocations: revocations,
		subscribers: subscribers,
	}
}

// Authenticate validates token and returns its claims.
//
// Errors wrap one of ErrMissingToken, ErrTokenMalformed, ErrTokenInvalid,
// ErrTokenExpired, ErrTokenRevoked or ErrSubscriberInactive. A store failure
// is returned as-is and should be treated as an authentication failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	// Service principals publish on behalf of the platform and have no subscriber row.
	if a.subscribers != nil && !claims.HasRole(RoleService) {
		active, err := a.subscribers.IsActiveSubscriber(ctx, claims.SubscriberID)
		if err != nil {
			return nil, fmt.Errorf("load subscriber %d: %w", claims.SubscriberID, err)
		}
		if !active {
			return nil, ErrSubscriberInactive
		}
	}

	return claims, nil
}

// Revoke records claims' token id as revoked until the token expires.
func (a *Authenticator) Revoke(ctx context.Context, claims *Claims) error {
	if a.revocations == nil {
		return errors.New("auth: no revocation store configured")
	}
	expires := time.Now().Add(a.jwt.ttl)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return a.revocations.Revoke(ctx, RevocationEntry{
		JTI:          claims.ID,
		SubscriberID: claims.SubscriberID,
		ExpiresAt:    expires,
	})
}

// Outcome classifies an Authenticate error for metrics and logging.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrSubscriberInactive):
		return "inactive"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid"
	default:
		return "error"
	}
}

// IsPolicyViolation reports whether err means the client sent no usable
// token at all, as opposed to a token that failed verification.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrTokenMalformed)
}
