// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package middleware provides HTTP middleware for the local control API.

  - RequestID: UUID request IDs, echoed in X-Request-ID and attached to the
    request's zerolog logger
  - PrometheusMetrics: request count and latency per chi route pattern

Both have the func(http.Handler) http.Handler shape used by chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Handlers log through the request logger:

	zerolog.Ctx(r.Context()).Info().Msg("reset requested")
*/
package middleware
