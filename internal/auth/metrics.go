// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts credential checks.
	// Labels:
	//   - surface: "websocket", "rest"
	//   - outcome: "success", "missing", "malformed", "invalid", "expired", "revoked", "inactive", "error"
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of token authentication attempts",
		},
		[]string{"surface", "outcome"},
	)

	// RevocationStoreOperations counts revocation store operations.
	RevocationStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocation_store_operations_total",
			Help: "Total number of revocation store operations",
		},
		[]string{"operation", "outcome"}, // operation: revoke, check; outcome: success, failure, hit
	)
)
