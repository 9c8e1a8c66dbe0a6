// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	middleware    *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil chiMiddleware uses the defaults.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, authzMiddleware *authz.Middleware, chiMiddleware *ChiMiddleware) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		middleware:    authMiddleware,
		authz:         authzMiddleware,
		chiMiddleware: chiMiddleware,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// ========================
	// WebSocket Endpoints
	// ========================
	// Authentication happens after the upgrade so failures reach the
	// client as close codes.
	r.Route("/ws", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitConnect())
		r.Get("/chat/{room_id}", router.handler.ChatWebSocket)
		r.Get("/notifications", router.handler.NotificationsWebSocket)
	})

	// ========================
	// Health & Metrics
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	// ========================
	// REST API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.middleware.Authenticate)

		r.Route("/rooms", func(r chi.Router) {
			r.Use(router.authz.AuthorizeMethod(authz.ObjectRooms))
			r.Post("/", router.handler.CreateRoom)
			r.Route("/{room_id}", func(r chi.Router) {
				r.Get("/members", router.handler.ListRoomMembers)
				r.Post("/members", router.handler.AddRoomMember)
				r.Delete("/members/{subscriber_id}", router.handler.RemoveRoomMember)
				r.Get("/messages", router.handler.ListRoomMessages)
				r.Post("/messages", router.handler.SendRoomMessage)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.With(router.authz.Authorize(authz.ObjectNotificationActions, authz.ActionWrite)).
				Post("/actions", router.handler.NotificationAction)

			r.Group(func(r chi.Router) {
				r.Use(router.authz.AuthorizeMethod(authz.ObjectNotifications))
				r.Get("/", router.handler.ListNotifications)
				r.Get("/unread-count", router.handler.UnreadNotificationCount)
				r.Post("/read-all", router.handler.MarkAllNotificationsRead)
				r.Post("/{id}/read", router.handler.MarkNotificationRead)
			})
		})

		r.With(router.authz.Authorize(authz.ObjectTokens, authz.ActionWrite)).
			Post("/tokens/revoke", router.handler.RevokeToken)

		r.With(router.authz.Authorize(authz.ObjectEvents, authz.ActionWrite)).
			Post("/events", router.handler.PublishEvent)

		r.Route("/broadcasts", func(r chi.Router) {
			r.Use(router.authz.AuthorizeMethod(authz.ObjectBroadcasts))
			r.Get("/", router.handler.ListBroadcasts)
			r.Post("/", router.handler.CreateBroadcast)
			r.Post("/{id}/run", router.handler.RunBroadcast)
			r.Put("/{id}/enabled", router.handler.SetBroadcastEnabled)
		})
	})

	return r
}
