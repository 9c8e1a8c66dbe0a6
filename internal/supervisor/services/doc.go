// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package services adapts server components to suture.Service.

  - HTTPServerService: ListenAndServe with graceful Shutdown on cancel
  - HubService: the connection hub's RunWithContext loop
  - PeriodicService: runs a task on a fixed interval (revocation store GC)

The scheduler and the embedded NATS server implement suture.Service
themselves and are added to the tree directly.

Each wrapper returns ctx.Err() on a clean stop and a wrapped error on
failure, which suture treats as a crash and restarts with backoff.
*/
package services
