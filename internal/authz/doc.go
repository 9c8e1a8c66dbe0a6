// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package authz gates REST routes with a Casbin RBAC policy.

The subject is the role claim of the authenticated token. Objects are route
groups and actions are read, write or delete:

	p, service, events, write
	g, admin, service

The model and the default policy are embedded. SecurityConfig.PolicyPath
points at a CSV policy file instead; it is reloaded every ReloadInterval.

Middleware.Authorize must run after auth.Middleware.Authenticate:

	r.With(authzMW.Authorize(authz.ObjectEvents, authz.ActionWrite)).Post("/events", h.PublishEvent)
*/
package authz
