// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package models defines the durable records shared by the store, the
// dispatcher and the REST handlers. Ids are assigned by the store.
package models
