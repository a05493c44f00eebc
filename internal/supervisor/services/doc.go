// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package services provides suture.Service wrappers for PushRelay components.

The wrappers translate the lifecycle patterns of existing components
(Start/Stop, ListenAndServe, periodic jobs) into suture's context-aware
Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe to Serve

Store Compactor (StoreCompactorService):
  - Wraps store.Compactor, which runs badger value-log GC
  - Start/Stop lifecycle

Background Refresh (BackgroundRefreshService):
  - Runs engine.Service.BackgroundRefresh on an interval
  - An expired budget is logged, not treated as a crash

Components that already implement Serve (connectivity.Prober and
events.LogSink) are added to the tree directly.
*/
package services
