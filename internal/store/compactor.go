// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

// Compactor periodically reclaims value-log space left behind by deleted
// records.
type Compactor struct {
	store    *Store
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewCompactor creates a compactor running every GCInterval.
func NewCompactor(s *Store) *Compactor {
	return &Compactor{store: s, interval: s.config.GCInterval}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)

	logging.Info().Dur("interval", c.interval).Msg("record store compactor started")
	return nil
}

// Stop stops the loop and waits for an in-progress run to finish.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("record store compactor stopped")
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last compaction finished.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunNow()
		}
	}
}

// RunNow performs one compaction immediately.
func (c *Compactor) RunNow() {
	start := time.Now()
	if err := c.store.RunGC(); err != nil {
		logging.Error().Err(err).Msg("record store compaction failed")
	}
	metrics.StoreCompactions.Inc()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	logging.Debug().Dur("duration", time.Since(start)).Msg("record store compaction finished")
}
