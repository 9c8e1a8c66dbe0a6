// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"

	"github.com/tomtom215/switchboard/internal/logging"
)

// RevokeToken revokes the caller's own token. Later REST requests and
// WebSocket connects presenting it are rejected; connections already open
// stay open until they close.
//
// @Summary Revoke the presented token
// @Tags Tokens
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 501 {object} APIResponse "No revocation store configured"
// @Security BearerAuth
// @Router /api/v1/tokens/revoke [post]
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	c := claims(r)
	if h.authn == nil {
		rw.Error(http.StatusNotImplemented, ErrCodeNotImplemented, "token revocation is not configured")
		return
	}
	if err := h.authn.Revoke(r.Context(), c); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("jti", c.ID).Msg("Token revocation failed")
		rw.InternalError("token revocation failed")
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("subscriber_id", c.SubscriberID).
		Str("jti", c.ID).
		Msg("Token revoked")
	rw.Success(map[string]interface{}{"revoked": true, "jti": c.ID})
}
