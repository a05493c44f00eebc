// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package retry

import (
	"fmt"
	"sync"

	"github.com/tomtom215/pushrelay/internal/logging"
)

// executor runs dispatched functions one at a time in dispatch order. A
// worker goroutine exists only while there is work.
type executor struct {
	name string

	mu      sync.Mutex
	queue   []func()
	running bool
}

func newExecutor(name string) *executor {
	return &executor{name: name}
}

// Dispatch queues fn and returns immediately.
func (e *executor) Dispatch(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = append(e.queue, fn)
	if !e.running {
		e.running = true
		go e.loop()
	}
}

func (e *executor) loop() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(fn)
	}
}

func (e *executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("executor", e.name).
				Str("panic", fmt.Sprint(r)).
				Msg("retry executor task panicked")
		}
	}()
	fn()
}
