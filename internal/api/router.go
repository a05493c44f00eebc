// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pushrelay/internal/config"
	"github.com/tomtom215/pushrelay/internal/middleware"
)

// Config configures the router.
type Config struct {
	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// ConfigFrom converts the API section of the agent configuration.
func ConfigFrom(cfg *config.APIConfig) Config {
	return Config{
		RateLimitRequests: cfg.RateLimitReqs,
		RateLimitWindow:   cfg.RateLimitWindow,
	}
}

// NewRouter builds the chi router for the control API.
func NewRouter(h *Handler, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, codeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			window := cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					respondError(w, req, http.StatusTooManyRequests, codeRateLimit, "rate limit exceeded", nil)
				}),
			))
		}

		r.Post("/subscribe", h.Subscribe)
		r.Post("/token", h.UpdateToken)
		r.Post("/push-events", h.PushEvent)
		r.Post("/mobile-events", h.MobileEvent)

		r.Post("/start", h.StartAll)
		r.Post("/start/{channel}", h.StartChannel)
		r.Post("/background-refresh", h.BackgroundRefresh)
		r.Post("/reset", h.Reset)

		r.Put("/permission", h.SetPermission)
		r.Put("/identity", h.SetIdentity)

		r.Get("/status", h.Status)
		if h.stream != nil {
			r.Get("/events", h.stream.ServeHTTP)
		}
	})

	return r
}
