// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/engine"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

// Refresher runs one bounded delivery pass. *engine.Service implements it.
type Refresher interface {
	BackgroundRefresh(ctx context.Context) error
}

// BackgroundRefreshService triggers a background refresh on an interval,
// the way the OS wakes a suspended app for a short fetch window.
type BackgroundRefreshService struct {
	refresher Refresher
	interval  time.Duration
	name      string
	log       zerolog.Logger
}

// NewBackgroundRefreshService creates the service. interval defaults to
// 15 minutes.
func NewBackgroundRefreshService(refresher Refresher, interval time.Duration) *BackgroundRefreshService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &BackgroundRefreshService{
		refresher: refresher,
		interval:  interval,
		name:      "background-refresh",
		log:       logging.ForComponent("background-refresh"),
	}
}

// Serve implements suture.Service. A closed engine ends the service for good.
func (s *BackgroundRefreshService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.refresh(ctx) {
				return nil
			}
		}
	}
}

// refresh runs one pass and reports whether the service should keep going.
func (s *BackgroundRefreshService) refresh(ctx context.Context) bool {
	start := time.Now()
	err := s.refresher.BackgroundRefresh(ctx)
	switch {
	case err == nil:
		metrics.BackgroundRefreshes.WithLabelValues("completed").Inc()
		s.log.Debug().Dur("elapsed", time.Since(start)).Msg("background refresh completed")
	case ctx.Err() != nil:
		// Shutdown; Serve returns on the next select.
	case errors.Is(err, engine.ErrBudgetExpired):
		metrics.BackgroundRefreshes.WithLabelValues("expired").Inc()
		s.log.Warn().Err(err).Msg("background refresh ran out of time")
	case errors.Is(err, engine.ErrClosed):
		s.log.Info().Msg("engine closed, background refresh stopping")
		return false
	default:
		metrics.BackgroundRefreshes.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).Msg("background refresh failed")
	}
	return true
}

func (s *BackgroundRefreshService) String() string {
	return s.name
}
