// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the connection hub. On cancel the hub closes every
// open connection with a going-away frame before RunWithContext returns.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "connection-hub",
	}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string {
	return s.name
}
