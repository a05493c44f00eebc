// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package cmdqueue provides a single-flight FIFO executor for jobs that
// complete asynchronously.
//
// A job receives a *Ticket and must call Ticket.Done exactly once when its
// work, including any network round trip, has finished. Only then does the
// queue start the next job. Extra Done calls are ignored.
//
//	q := cmdqueue.New("push_event/start", true)
//	q.Submit(func(t *cmdqueue.Ticket) {
//	    defer t.Done()
//	    res := send(t.Context(), rec)
//	    if !t.Current() {
//	        return // superseded by Reset(true); do not touch shared state
//	    }
//	    apply(res)
//	})
//
// Epoch-aware queues support bulk cancellation: Reset(true) bumps the epoch,
// cancels the running ticket's context and turns its eventual Done into a
// no-op. Queues without epochs only release the running slot so the next
// Submit starts immediately; the orphaned job keeps running and its side
// effects may still land.
package cmdqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/pushrelay/internal/logging"
)

// Job is one unit of work. It must eventually call t.Done.
type Job func(t *Ticket)

type entry struct {
	job    Job
	onDrop func()
}

// Queue is a single-flight FIFO executor.
type Queue struct {
	name       string
	epochAware bool

	mu      sync.Mutex
	pending []entry
	current *Ticket
	epoch   uint64
}

// New creates an idle queue.
func New(name string, epochAware bool) *Queue {
	return &Queue{name: name, epochAware: epochAware}
}

// Name returns the queue name used in logs.
func (q *Queue) Name() string {
	return q.name
}

// Submit appends job and starts it if the queue is idle.
func (q *Queue) Submit(job Job) {
	q.SubmitWithDrop(job, nil)
}

// SubmitWithDrop is Submit with a callback that runs instead of job when
// Reset discards it before it started. onDrop runs without the queue lock
// held and never together with job.
func (q *Queue) SubmitWithDrop(job Job, onDrop func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, entry{job: job, onDrop: onDrop})
	if q.current == nil {
		q.startNextLocked()
	}
}

// startNextLocked pops the next job and runs it on its own goroutine.
// q.mu must be held.
func (q *Queue) startNextLocked() {
	if len(q.pending) == 0 {
		return
	}
	job := q.pending[0].job
	q.pending[0] = entry{}
	q.pending = q.pending[1:]

	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticket{queue: q, epoch: q.epoch, ctx: ctx, cancel: cancel}
	q.current = t

	go q.run(job, t)
}

func (q *Queue) run(job Job, t *Ticket) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("queue", q.name).
				Str("panic", fmt.Sprint(r)).
				Msg("command queue job panicked")
			t.Done()
		}
	}()
	job(t)
}

// finish is called once per ticket from Ticket.Done.
func (q *Queue) finish(t *Ticket) {
	t.cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	// A ticket released by Reset(true) no longer owns the running slot.
	if q.current != t {
		return
	}
	if q.epochAware && t.epoch != q.epoch {
		return
	}
	q.current = nil
	q.startNextLocked()
}

// Reset drops every job that has not started. With dropCurrent the running
// job is released as well: on an epoch-aware queue its ticket becomes stale
// and its context is canceled; on a plain queue the running slot is simply
// freed. Drop callbacks of discarded jobs run before Reset returns.
func (q *Queue) Reset(dropCurrent bool) {
	q.mu.Lock()
	discarded := q.pending
	q.pending = nil
	q.resetCurrentLocked(dropCurrent, len(discarded))
	q.mu.Unlock()

	for _, e := range discarded {
		if e.onDrop != nil {
			e.onDrop()
		}
	}
}

// resetCurrentLocked releases the running slot if asked. q.mu must be held.
func (q *Queue) resetCurrentLocked(dropCurrent bool, dropped int) {
	if dropCurrent && q.current != nil {
		if q.epochAware {
			q.epoch++
			q.current.cancel()
		}
		q.current = nil
	}

	logging.Debug().
		Str("queue", q.name).
		Int("dropped", dropped).
		Bool("drop_current", dropCurrent).
		Uint64("epoch", q.epoch).
		Msg("command queue reset")
}

// Pending returns the number of jobs waiting to start.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running reports whether a job currently owns the running slot.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Epoch returns the current generation.
func (q *Queue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

// Ticket is handed to a running job.
type Ticket struct {
	queue  *Queue
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Done releases the running slot and starts the next job. Only the first
// call has an effect; a call from a stale ticket does not advance the queue.
func (t *Ticket) Done() {
	t.once.Do(func() {
		t.queue.finish(t)
	})
}

// Current reports whether the ticket's generation is still the queue's.
// Plain queues always report true.
func (t *Ticket) Current() bool {
	if !t.queue.epochAware {
		return true
	}
	t.queue.mu.Lock()
	defer t.queue.mu.Unlock()
	return t.epoch == t.queue.epoch
}

// Epoch returns the generation captured when the job started.
func (t *Ticket) Epoch() uint64 {
	return t.epoch
}

// Context is canceled when the job finishes or is dropped by Reset(true) on
// an epoch-aware queue.
func (t *Ticket) Context() context.Context {
	return t.ctx
}
