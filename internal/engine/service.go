// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/config"
	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/retry"
	"github.com/tomtom215/pushrelay/internal/store"
)

// Config holds the engine tunables.
type Config struct {
	// InitialDelay, MaxLocalRetryCount and Unit drive the channel backoff.
	InitialDelay       int
	MaxLocalRetryCount int
	Unit               time.Duration

	// MaxAttempts is the per-record attempt limit for each channel.
	MaxAttempts map[models.Channel]int

	PerRecordBackoff bool
	StaleAfter       time.Duration
	BackgroundBudget time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	attempts := make(map[models.Channel]int, len(models.Channels))
	for _, ch := range models.Channels {
		attempts[ch] = 5
	}
	return Config{
		InitialDelay:       0,
		MaxLocalRetryCount: 5,
		Unit:               time.Second,
		MaxAttempts:        attempts,
		PerRecordBackoff:   true,
		StaleAfter:         7 * 24 * time.Hour,
		BackgroundBudget:   29 * time.Second,
	}
}

// ConfigFrom extracts the engine settings from the agent configuration.
func ConfigFrom(cfg *config.Config) Config {
	attempts := make(map[models.Channel]int, len(models.Channels))
	for _, ch := range models.Channels {
		attempts[ch] = cfg.Retry.AttemptsFor(string(ch))
	}
	return Config{
		InitialDelay:       cfg.Retry.InitialDelay,
		MaxLocalRetryCount: cfg.Retry.MaxLocalRetryCount,
		Unit:               cfg.Retry.Unit,
		MaxAttempts:        attempts,
		PerRecordBackoff:   cfg.PushEvent.PerRecordBackoff,
		StaleAfter:         cfg.MobileEvent.StaleAfter,
		BackgroundBudget:   cfg.Background.Budget,
	}
}

// Service is the entry point to the delivery engine: one orchestrator per
// channel, wired to shared collaborators.
type Service struct {
	deps          Deps
	cfg           Config
	orchestrators map[models.Channel]*Orchestrator
	log           zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// New wires the four channel orchestrators. Store, Sender and Identity are
// required; the service assumes it is online, allowed to notify and silent
// when Gate, Permission or Events are nil.
func New(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: record store is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("engine: sender is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("engine: identity resolver is required")
	}
	if deps.Gate == nil {
		deps.Gate = connectivity.NewMonitor(true)
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Permission == nil {
		deps.Permission = NewPermission(true)
	}

	strategies := []Strategy{
		newTokenUpdateStrategy(),
		newSubscribeStrategy(deps.Permission),
		newPushEventStrategy(cfg.PerRecordBackoff),
		newMobileEventStrategy(cfg.StaleAfter),
	}

	s := &Service{
		deps:          deps,
		cfg:           cfg,
		orchestrators: make(map[models.Channel]*Orchestrator, len(strategies)),
		log:           logging.ForComponent("engine"),
	}

	for _, st := range strategies {
		ch := st.Channel()
		maxAttempts := cfg.MaxAttempts[ch]
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		scheduler := retry.NewScheduler(ch, deps.Store, deps.Gate, retry.Config{
			InitialDelay:       cfg.InitialDelay,
			MaxLocalRetryCount: cfg.MaxLocalRetryCount,
			Unit:               cfg.Unit,
		})
		s.orchestrators[ch] = newOrchestrator(st, &deps, scheduler, maxAttempts)
	}

	return s, nil
}

func (s *Service) orchestrator(ch models.Channel) (*Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	o, ok := s.orchestrators[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return o, nil
}

// Start is an external trigger for one channel: its retry counter is reset
// and a drain is queued behind any drain already running.
func (s *Service) Start(ctx context.Context, ch models.Channel) error {
	o, err := s.orchestrator(ch)
	if err != nil {
		return err
	}
	return o.start(ctx)
}

// StartAll triggers every channel, as on application launch or foreground.
func (s *Service) StartAll(ctx context.Context) error {
	var errs []error
	for _, ch := range models.Channels {
		if err := s.Start(ctx, ch); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// Submit persists payload as a new record of ch and triggers a drain. The
// payload type must match the channel: *models.SubscribePayload,
// *models.TokenPayload, *models.PushEventPayload or
// *models.MobileEventPayload.
func (s *Service) Submit(ctx context.Context, ch models.Channel, payload interface{}) (*store.Record, error) {
	o, err := s.orchestrator(ch)
	if err != nil {
		return nil, err
	}
	return o.submit(ctx, payload)
}

// ResetAll wipes all local delivery state: scheduled backoffs are
// canceled, queued and running jobs are dropped, and records, the confirmed
// token and retry counters are deleted.
func (s *Service) ResetAll(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	for _, o := range s.orchestrators {
		o.reset()
	}
	if err := s.deps.Store.Clear(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, ch := range models.Channels {
		metrics.RetryCounter.WithLabelValues(string(ch)).Set(0)
		metrics.PendingRecords.WithLabelValues(string(ch)).Set(0)
	}

	s.log.Info().Msg("delivery state reset")
	s.deps.Events.Emit(events.Event{Type: events.TypeReset})
	return nil
}

// BackgroundRefresh runs one bounded pass over every channel. Push events
// are swept: every pending event is attempted even after failures. When the
// budget runs out first, scheduled backoffs are canceled and running drains
// are dropped, and ErrBudgetExpired is returned.
func (s *Service) BackgroundRefresh(ctx context.Context) error {
	if _, err := s.orchestrator(models.ChannelPushEvent); err != nil {
		return err
	}

	// The budget has its own timer: a canceled caller stops waiting but
	// leaves scheduling alone.
	var expired <-chan time.Time
	if s.cfg.BackgroundBudget > 0 {
		budget := time.NewTimer(s.cfg.BackgroundBudget)
		defer budget.Stop()
		expired = budget.C
	}

	// Buffered so late completions never block after we stop waiting.
	finished := make(chan struct{}, len(models.Channels))
	started := 0
	for _, ch := range models.Channels {
		o := s.orchestrators[ch]
		if err := o.scheduler.ResetCounter(ctx); err != nil {
			s.log.Warn().Err(err).Str("channel", string(ch)).Msg("background refresh: counter reset failed")
		}
		mode := modeNormal
		if ch == models.ChannelPushEvent {
			mode = modeSweep
		}
		o.enqueueDrain(mode, func() { finished <- struct{}{} })
		started++
	}

	start := time.Now()
	for done := 0; done < started; {
		select {
		case <-finished:
			done++
		case <-expired:
			for _, o := range s.orchestrators {
				o.halt()
			}
			s.log.Warn().
				Dur("budget", s.cfg.BackgroundBudget).
				Int("finished", done).
				Int("started", started).
				Msg("background refresh budget expired, scheduling canceled")
			return fmt.Errorf("%w after %s", ErrBudgetExpired, s.cfg.BackgroundBudget)
		case <-ctx.Done():
			s.log.Debug().
				Int("finished", done).
				Int("started", started).
				Msg("background refresh caller gone, drains continue")
			return ctx.Err()
		}
	}

	s.log.Debug().Dur("elapsed", time.Since(start)).Msg("background refresh complete")
	return nil
}

// Status reports per-channel backlog and retry state.
func (s *Service) Status(ctx context.Context) (*models.StatusResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	resp := &models.StatusResponse{Online: true}
	if m, ok := s.deps.Gate.(interface{ Online() bool }); ok {
		resp.Online = m.Online()
	}

	for _, ch := range models.Channels {
		st, err := s.orchestrators[ch].status(ctx)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", ch, err)
		}
		resp.Channels = append(resp.Channels, st)
	}
	return resp, nil
}

// SetPermission updates the notification permission. Granting it triggers
// the subscribe channel. It returns false when the configured checker
// cannot be changed.
func (s *Service) SetPermission(ctx context.Context, allowed bool) (bool, error) {
	p, ok := s.deps.Permission.(interface{ Set(bool) })
	if !ok {
		return false, nil
	}
	p.Set(allowed)
	s.log.Info().Bool("allowed", allowed).Msg("notification permission changed")
	if !allowed {
		return true, nil
	}
	return true, s.Start(ctx, models.ChannelSubscribe)
}

// Close cancels all scheduling and drops queued work. Records stay in the
// store for the next run.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, o := range s.orchestrators {
		o.reset()
	}
}
