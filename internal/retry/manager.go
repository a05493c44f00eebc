// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package retry schedules delayed, cancellable re-triggers of channel drains
// with deterministic exponential backoff.
//
// Each channel owns a Scheduler. A Scheduler keeps its pending timers in a
// Manager keyed by backoff key (the channel name, or channel/record for
// fine-grained retries) and runs fired timers on its own serial executor, so
// a slow trigger on one channel never delays another channel's retries.
//
// The backoff for the n-th consecutive cycle is (initialDelay+3)^n units with
// no jitter; n is the channel's persisted counter at scheduling time.
package retry

import (
	"sync"
)

// Cancelable is a scheduled job that can be stopped before it runs.
type Cancelable interface {
	Cancel()
}

// Manager holds at most one scheduled job per key.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]Cancelable
}

// NewManager creates an empty work table.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]Cancelable)}
}

// Store remembers job under key, canceling any job it replaces.
func (m *Manager) Store(key string, job Cancelable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.jobs[key]; ok && old != job {
		old.Cancel()
	}
	m.jobs[key] = job
}

// Cancel stops and forgets the job under key.
func (m *Manager) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[key]
	if !ok {
		return false
	}
	job.Cancel()
	delete(m.jobs, key)
	return true
}

// CancelAll stops and forgets every job and returns how many there were.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.jobs)
	for key, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, key)
	}
	return n
}

// Remove forgets job without canceling it, but only if it is still the one
// stored under key.
func (m *Manager) Remove(key string, job Cancelable) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.jobs[key]; ok && current == job {
		delete(m.jobs, key)
		return true
	}
	return false
}

// Has reports whether a job is stored under key.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[key]
	return ok
}

// Len returns the number of scheduled jobs.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}
