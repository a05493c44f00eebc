// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package main is the entry point for the PushRelay agent.
//
// PushRelay runs next to a mobile application and delivers its
// subscription changes, device tokens, push delivery/open reports and
// custom events to the marketing server. Every operation is persisted
// first and retried with exponential backoff until the server accepts it,
// rejects it, or it runs out of attempts.
//
// # Application Architecture
//
// The agent initializes components in the following order:
//
//  1. Configuration: defaults, YAML file and environment (Koanf v2)
//  2. Record store: BadgerDB holding pending records, retry counters and
//     the confirmed device token
//  3. Transport: HTTP client with rate limiter and circuit breaker
//  4. Identity and connectivity: current user resolver and reachability
//     prober
//  5. Event bus: lifecycle events on a watermill gochannel
//  6. Delivery engine: one orchestrator per channel
//  7. Supervisor tree: compactor, prober, background refresh, event sink,
//     event stream and the control API
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree. Scheduled retries are
// canceled and queued drains are dropped; pending records stay in the store
// and are picked up on the next start.
//
// # Example Usage
//
//	export API_BASE_URL=https://pxl.example.com/api/v1.1
//	export RESOURCE_TOKEN=rt-1234
//	export IDENTITY_USER_TAG=user-1
//	./pushrelay
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pushrelay/internal/api"
	"github.com/tomtom215/pushrelay/internal/config"
	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/engine"
	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/supervisor"
	"github.com/tomtom215/pushrelay/internal/supervisor/services"
	"github.com/tomtom215/pushrelay/internal/transport"
	"github.com/tomtom215/pushrelay/internal/websocket"
)

//nolint:gocyclo // sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.ConfigFrom(&cfg.Logging))

	logging.Info().
		Str("server", cfg.Server.BaseURL).
		Str("identity_mode", cfg.Identity.Mode).
		Int("initial_delay", cfg.Retry.InitialDelay).
		Int("max_local_retry_count", cfg.Retry.MaxLocalRetryCount).
		Int("max_attempts", cfg.Retry.MaxAttempts).
		Msg("Starting PushRelay")

	storeCfg := store.ConfigFrom(&cfg.Store)
	st, err := store.Open(&storeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing record store")
		}
	}()
	if storeCfg.InMemory {
		logging.Warn().Msg("Record store is in memory; pending records will not survive a restart")
	} else {
		logging.Info().Str("path", storeCfg.Path).Msg("Record store opened")
	}

	client := transport.NewClient(&cfg.Server)

	resolver, err := identity.FromConfig(&cfg.Identity)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure identity")
	}

	monitor := connectivity.NewMonitor(cfg.Connectivity.StartOnline || cfg.Connectivity.ProbeURL == "")
	prober := connectivity.NewProber(
		monitor,
		cfg.Connectivity.ProbeURL,
		cfg.Connectivity.ProbeInterval,
		cfg.Connectivity.ProbeTimeout,
	)
	if cfg.Connectivity.ProbeURL == "" {
		logging.Info().Msg("Connectivity probing disabled; assuming online")
	}

	bus := events.NewBus(0)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	svc, err := engine.New(engine.Deps{
		Store:      st,
		Sender:     client,
		Identity:   resolver,
		Gate:       monitor,
		Events:     bus,
		Permission: engine.NewPermission(cfg.Subscribe.NotificationsAllowed),
	}, engine.ConfigFrom(cfg))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create delivery engine")
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(
		logging.NewSlogLoggerForComponent("supervisor"),
		supervisor.TreeConfigFrom(&cfg.Supervisor),
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewStoreCompactorService(store.NewCompactor(st)))

	tree.AddDeliveryService(prober)
	tree.AddDeliveryService(events.NewLogSink(bus))
	if cfg.Background.Enabled {
		tree.AddDeliveryService(services.NewBackgroundRefreshService(svc, cfg.Background.Interval))
		logging.Info().
			Dur("interval", cfg.Background.Interval).
			Dur("budget", cfg.Background.Budget).
			Msg("Background refresh enabled")
	}

	if cfg.API.Enabled {
		handler := api.NewHandler(svc, resolver)

		hub := websocket.NewHub(bus)
		tree.AddDeliveryService(hub)
		handler.SetEventStream(hub)

		router := api.NewRouter(handler, api.ConfigFrom(&cfg.API))
		server := &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			// Background refresh requests block for up to the budget.
			WriteTimeout: cfg.Background.Budget + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.API.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("Control API enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Application launch: every channel flushes whatever the last run left.
	if err := svc.StartAll(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to start delivery channels")
	}

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, s := range unstopped {
			logging.Warn().Str("service", s.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("PushRelay stopped")
}
