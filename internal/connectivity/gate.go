// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package connectivity tracks whether the delivery server is reachable and
// defers work until it is.
package connectivity

import (
	"fmt"
	"sync"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

// Gate runs actions once the network is available.
type Gate interface {
	// RunWhenOnline runs action immediately when online. Otherwise the
	// action is deferred; deferred actions run in registration order when
	// connectivity returns.
	RunWhenOnline(action func())
}

// Monitor is the Gate implementation fed by a Prober or by tests.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	deferred []func()
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(online bool) *Monitor {
	metrics.SetOnline(online)
	return &Monitor{online: online}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Deferred returns the number of actions waiting for connectivity.
func (m *Monitor) Deferred() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred)
}

// RunWhenOnline implements Gate.
func (m *Monitor) RunWhenOnline(action func()) {
	m.mu.Lock()
	if !m.online {
		m.deferred = append(m.deferred, action)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	runAction(action)
}

// SetOnline records a state change. Going online flushes deferred actions
// in FIFO order, outside the lock so they may re-enter the gate.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var ready []func()
	if online {
		ready = m.deferred
		m.deferred = nil
	}
	m.mu.Unlock()

	if changed {
		metrics.SetOnline(online)
		logging.Info().Bool("online", online).Int("deferred", len(ready)).Msg("connectivity changed")
	}

	for _, action := range ready {
		runAction(action)
	}
}

func runAction(action func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("panic", fmt.Sprint(r)).Msg("deferred connectivity action panicked")
		}
	}()
	action()
}
