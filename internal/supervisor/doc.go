// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package supervisor provides process supervision for PushRelay using suture v4.

Every long-running component of the agent runs under a hierarchical supervisor
tree with automatic restart, failure isolation and graceful shutdown.

# Overview

	RootSupervisor ("pushrelay")
	├── DataSupervisor ("data-layer")
	│   └── StoreCompactorService
	├── DeliverySupervisor ("delivery-layer")
	│   ├── connectivity.Prober
	│   ├── BackgroundRefreshService
	│   ├── events.LogSink
	│   └── websocket.Hub
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The delivery engine itself is not a supervised service: orchestrators only
run work when triggered, and their state lives in the record store. The
services above feed triggers into it.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(slogger, supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
	    return err
	}

	tree.AddDataService(services.NewStoreCompactorService(store.NewCompactor(st)))
	tree.AddDeliveryService(prober)
	tree.AddDeliveryService(services.NewBackgroundRefreshService(engine, cfg.Background.Interval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.API.ShutdownTimeout))

	// Services can also be placed by layer and removed later.
	token, err := tree.Add(supervisor.LayerDelivery, hub)
	...
	err = tree.Remove(supervisor.LayerDelivery, token)

	errCh := tree.ServeBackground(ctx)

# Failure Handling

Each service failure increments a counter that decays over FailureDecay
seconds. Past FailureThreshold, restarts wait FailureBackoff. A service that
returns nil is not restarted; any other return value is a crash.

# Debugging Shutdown Issues

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("service did not stop")
	}
*/
package supervisor
