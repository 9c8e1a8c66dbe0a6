// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DecisionsTotal counts authorization decisions.
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Total number of authorization decisions",
	},
	[]string{"role", "object", "action", "decision"}, // decision: allow, deny, error
)
