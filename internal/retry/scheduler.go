// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
)

// CounterStore persists the per-channel backoff counter.
type CounterStore interface {
	RetryCount(ctx context.Context, channel models.Channel) (int, error)
	SetRetryCount(ctx context.Context, channel models.Channel, n int) error
}

// Config controls backoff timing for one channel.
type Config struct {
	// InitialDelay shifts the backoff base: delay(n) = (InitialDelay+3)^n.
	InitialDelay int

	// MaxLocalRetryCount is the highest counter value that still schedules
	// an automatic retry.
	MaxLocalRetryCount int

	// Unit is the duration of one backoff step. Production uses one second.
	Unit time.Duration
}

// Backoff describes the outcome of ScheduleBackoff.
type Backoff struct {
	Scheduled bool
	// Attempt is the counter value the delay was computed from.
	Attempt int
	Delay   time.Duration
}

// Scheduler schedules backoff re-triggers for one channel.
type Scheduler struct {
	channel  models.Channel
	counters CounterStore
	gate     connectivity.Gate
	cfg      Config

	manager *Manager
	exec    *executor
	log     zerolog.Logger

	// mu serializes counter read-modify-write.
	mu sync.Mutex
}

// NewScheduler creates the scheduler for channel.
func NewScheduler(channel models.Channel, counters CounterStore, gate connectivity.Gate, cfg Config) *Scheduler {
	if cfg.Unit <= 0 {
		cfg.Unit = time.Second
	}
	return &Scheduler{
		channel:  channel,
		counters: counters,
		gate:     gate,
		cfg:      cfg,
		manager:  NewManager(),
		exec:     newExecutor(string(channel)),
		log:      logging.ForChannel(string(channel)),
	}
}

// timerJob is one scheduled backoff.
type timerJob struct {
	mu       sync.Mutex
	timer    *time.Timer
	canceled atomic.Bool
}

func (j *timerJob) arm(delay time.Duration, fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.canceled.Load() {
		return
	}
	j.timer = time.AfterFunc(delay, fn)
}

func (j *timerJob) Cancel() {
	j.canceled.Store(true)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.timer != nil {
		j.timer.Stop()
	}
}

// ScheduleBackoff arranges for trigger to run after the current cycle's
// delay, once the gate reports connectivity, on this channel's executor.
// The persisted counter is incremented before returning. When the counter
// has passed MaxLocalRetryCount nothing is scheduled and Scheduled is false.
func (s *Scheduler) ScheduleBackoff(ctx context.Context, key string, trigger func()) (Backoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.counters.RetryCount(ctx, s.channel)
	if err != nil {
		return Backoff{}, fmt.Errorf("read retry counter: %w", err)
	}

	if n > s.cfg.MaxLocalRetryCount {
		metrics.BackoffsExhausted.WithLabelValues(string(s.channel)).Inc()
		s.log.Warn().
			Str("key", key).
			Int("retry_count", n).
			Int("max_local_retry_count", s.cfg.MaxLocalRetryCount).
			Msg("backoff limit reached, waiting for external trigger")
		return Backoff{Attempt: n}, nil
	}

	if err := s.counters.SetRetryCount(ctx, s.channel, n+1); err != nil {
		return Backoff{}, fmt.Errorf("persist retry counter: %w", err)
	}
	metrics.RetryCounter.WithLabelValues(string(s.channel)).Set(float64(n + 1))

	delay := DelayIn(s.cfg.InitialDelay, n, s.cfg.Unit)
	job := &timerJob{}
	fire := func() {
		if job.canceled.Load() {
			return
		}
		s.manager.Remove(key, job)
		metrics.BackoffsFired.WithLabelValues(string(s.channel)).Inc()
		s.log.Debug().Str("key", key).Msg("backoff fired")
		trigger()
	}
	// Store before arming so a very short timer cannot fire ahead of the
	// table entry.
	s.manager.Store(key, job)
	job.arm(delay, func() {
		s.gate.RunWhenOnline(func() {
			s.exec.Dispatch(fire)
		})
	})

	metrics.BackoffsScheduled.WithLabelValues(string(s.channel)).Inc()
	s.log.Info().
		Str("key", key).
		Int("retry_count", n).
		Dur("delay", delay).
		Msg("backoff scheduled")

	return Backoff{Scheduled: true, Attempt: n, Delay: delay}, nil
}

// ResetCounter sets the persisted counter to zero. Scheduled timers are left
// alone.
func (s *Scheduler) ResetCounter(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.counters.SetRetryCount(ctx, s.channel, 0); err != nil {
		return fmt.Errorf("reset retry counter: %w", err)
	}
	metrics.RetryCounter.WithLabelValues(string(s.channel)).Set(0)
	return nil
}

// Counter returns the persisted counter.
func (s *Scheduler) Counter(ctx context.Context) (int, error) {
	return s.counters.RetryCount(ctx, s.channel)
}

// Cancel stops the backoff stored under key.
func (s *Scheduler) Cancel(key string) bool {
	return s.manager.Cancel(key)
}

// CancelAll stops every scheduled backoff of the channel. The persisted
// counter is not touched.
func (s *Scheduler) CancelAll() int {
	n := s.manager.CancelAll()
	if n > 0 {
		s.log.Debug().Int("canceled", n).Msg("backoffs canceled")
	}
	return n
}

// Scheduled returns the number of pending backoffs.
func (s *Scheduler) Scheduled() int {
	return s.manager.Len()
}

// HasScheduled reports whether a backoff is pending under key.
func (s *Scheduler) HasScheduled(key string) bool {
	return s.manager.Has(key)
}
