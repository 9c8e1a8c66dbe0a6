// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package supervisor runs the server's long-lived services under suture v4.

The tree has three layers, each its own supervisor:

	RootSupervisor ("switchboard")
	├── DataSupervisor ("data-layer")
	│   ├── scheduler (broadcasts, retention cleanup)
	│   └── revocation-gc (badger revocation store only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── connection-hub
	│   └── nats-embedded (bus driver nats with embedded server)
	└── APISupervisor ("api-layer")
	    └── http-server

A service that returns an error is restarted with backoff. Returning
suture.ErrDoNotRestart removes it. Supervisor events are logged through
sutureslog, fed by logging.NewSlogLogger so they share the zerolog output.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(sched)
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	for err := range errCh {
	    ...
	}

Service adapters live in the services subpackage.
*/
package supervisor
