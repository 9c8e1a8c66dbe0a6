// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package auth validates the credentials presented by WebSocket and REST clients.

Switchboard consumes tokens; it does not run a login flow. Tokens are HS256
JWTs carrying the subscriber id, username and role. Each token has a unique
jti so it can be revoked before it expires.

Key Components:

  - JWTManager: token signing (operators and tests) and validation
  - RevocationStore: revoked jti values with a TTL, backed by BadgerDB or memory
  - Authenticator: the full check run when a connection authenticates
  - Middleware: Bearer authentication and role gates for the REST surface

Error Mapping:

Authenticator errors map onto WebSocket close codes:

	ErrMissingToken, ErrTokenMalformed        1008 policy violation
	ErrTokenInvalid, ErrTokenExpired,
	ErrTokenRevoked, ErrSubscriberInactive    4001 authentication failed

Roles:

	subscriber  end users; may connect and act on their own resources
	service     backend producers; may use the publish API and broadcasts
	admin       everything a service may do
*/
package auth
