// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/cmdqueue"
	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/retry"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

// drainMode selects how a drain reacts to retryable records.
type drainMode int

const (
	// modeNormal honors the strategy's stop-on-retry policy.
	modeNormal drainMode = iota
	// modeSweep attempts every record regardless of earlier failures.
	modeSweep
)

// step is the per-record result of the send loop.
type step int

const (
	stepNext step = iota
	stepRetry
	stepStale
	stepFatal
)

// Drain results, used as metric labels.
const (
	resultDrained  = "drained"
	resultStopped  = "stopped"
	resultAborted  = "aborted"
	resultStale    = "stale"
	resultFatal    = "fatal"
	resultDegraded = "degraded"
)

// Orchestrator runs the delivery state machine of one channel.
type Orchestrator struct {
	strategy    Strategy
	store       RecordStore
	sender      transport.Sender
	identity    identity.Resolver
	gate        connectivity.Gate
	scheduler   *retry.Scheduler
	emitter     events.Emitter
	maxAttempts int

	entityQueue *cmdqueue.Queue
	startQueue  *cmdqueue.Queue

	degraded atomic.Bool
	draining atomic.Int32
	log      zerolog.Logger
}

func newOrchestrator(strategy Strategy, deps *Deps, scheduler *retry.Scheduler, maxAttempts int) *Orchestrator {
	ch := string(strategy.Channel())
	return &Orchestrator{
		strategy:    strategy,
		store:       deps.Store,
		sender:      deps.Sender,
		identity:    deps.Identity,
		gate:        deps.Gate,
		scheduler:   scheduler,
		emitter:     deps.Events,
		maxAttempts: maxAttempts,
		entityQueue: cmdqueue.New(ch+"/entity", false),
		startQueue:  cmdqueue.New(ch+"/start", true),
		log:         logging.ForChannel(ch),
	}
}

// Channel returns the channel this orchestrator serves.
func (o *Orchestrator) Channel() models.Channel {
	return o.strategy.Channel()
}

// submit persists a new record on the entity queue and, once it is stored,
// triggers a drain. It waits for the insert unless ctx ends first; the
// insert itself is not canceled. An insert discarded by a reset before it
// ran returns ErrReset.
func (o *Orchestrator) submit(ctx context.Context, payload interface{}) (*store.Record, error) {
	ch := o.strategy.Channel()

	value, err := o.strategy.Accept(payload)
	if err != nil {
		return nil, err
	}

	userTag, err := o.identity.CurrentUserTag(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", ch, err)
	}

	rec, err := store.NewRecord(ch, userTag, value)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", ch, err)
	}

	type insertResult struct {
		rec *store.Record
		err error
	}
	done := make(chan insertResult, 1)
	jobCtx := context.WithoutCancel(ctx)

	o.entityQueue.SubmitWithDrop(func(t *cmdqueue.Ticket) {
		defer t.Done()

		saved, err := o.strategy.Insert(jobCtx, o.store, rec)
		done <- insertResult{saved, err}
		if err != nil {
			return
		}

		metrics.RecordsQueued.WithLabelValues(string(ch)).Inc()
		o.emit(events.Event{Type: events.TypeQueued, RecordID: saved.ID})
		if err := o.start(jobCtx); err != nil {
			o.log.Error().Err(err).Msg("failed to trigger drain after submit")
		}
	}, func() {
		done <- insertResult{err: ErrReset}
	})

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("submit %s: %w", ch, res.err)
		}
		return res.rec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start is an external trigger: the channel counter restarts at zero and a
// drain is queued. Pending backoff timers are left in place.
func (o *Orchestrator) start(ctx context.Context) error {
	if err := o.scheduler.ResetCounter(ctx); err != nil {
		return err
	}
	o.enqueueDrain(modeNormal, nil)
	return nil
}

// enqueueDrain queues a drain on the start queue. onDone, if set, runs when
// the drain finishes, turns out to be stale, or is dropped by a reset
// before it started.
func (o *Orchestrator) enqueueDrain(mode drainMode, onDone func()) {
	o.startQueue.SubmitWithDrop(func(t *cmdqueue.Ticket) {
		o.gate.RunWhenOnline(func() {
			go o.drain(t, mode, onDone)
		})
	}, onDone)
}

func (o *Orchestrator) drain(t *cmdqueue.Ticket, mode drainMode, onDone func()) {
	if onDone != nil {
		defer onDone()
	}
	defer t.Done()

	ch := string(o.strategy.Channel())
	if !t.Current() {
		metrics.Drains.WithLabelValues(ch, resultStale).Inc()
		return
	}
	if o.degraded.Load() {
		o.log.Warn().Msg("channel degraded after a fatal store error, skipping drain")
		metrics.Drains.WithLabelValues(ch, resultDegraded).Inc()
		return
	}

	o.draining.Add(1)
	defer o.draining.Add(-1)

	result := o.run(t, mode)
	metrics.Drains.WithLabelValues(ch, result).Inc()
	o.log.Debug().Str("result", result).Bool("sweep", mode == modeSweep).Msg("drain finished")

	if t.Current() {
		o.updatePending(t.Context())
	}
}

func (o *Orchestrator) run(t *cmdqueue.Ticket, mode drainMode) string {
	ctx := t.Context()
	ch := o.strategy.Channel()

	if err := o.strategy.Prepare(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			o.log.Info().Err(err).Msg("pre-send check failed, retrying later")
			o.emit(events.Event{Type: events.TypeRetry, Message: err.Error()})
			o.stopForRetry(ctx, string(ch))
			return resultStopped
		}
		o.abort(err)
		return resultAborted
	}

	userTag, err := o.identity.CurrentUserTag(ctx)
	if err != nil {
		o.abort(fmt.Errorf("resolve user tag: %w", err))
		return resultAborted
	}

	if err := o.strategy.Purge(ctx, o.store); err != nil {
		if o.checkFatal(err) {
			return resultFatal
		}
		o.log.Warn().Err(err).Msg("stale record purge failed")
	}

	records, err := o.strategy.Fetch(ctx, o.store, userTag)
	if err != nil {
		if o.checkFatal(err) {
			return resultFatal
		}
		if !t.Current() {
			return resultStale
		}
		o.log.Error().Err(err).Msg("failed to fetch pending records")
		o.stopForRetry(ctx, string(ch))
		return resultStopped
	}

	if len(records) == 0 {
		o.doneDraining(ctx)
		return resultDrained
	}

	stopOnRetry := mode == modeNormal && o.strategy.StopOnRetry()
	var retryKey string

loop:
	for _, rec := range records {
		if !t.Current() {
			return resultStale
		}
		switch o.process(t, rec) {
		case stepStale:
			return resultStale
		case stepFatal:
			return resultFatal
		case stepRetry:
			if retryKey == "" {
				retryKey = o.strategy.BackoffKey(rec)
			}
			if stopOnRetry {
				break loop
			}
		}
	}

	if !t.Current() {
		return resultStale
	}
	if retryKey != "" {
		o.stopForRetry(ctx, retryKey)
		return resultStopped
	}
	o.doneDraining(ctx)
	return resultDrained
}

// process sends one record and applies the outcome.
func (o *Orchestrator) process(t *cmdqueue.Ticket, rec *store.Record) step {
	ctx := t.Context()

	var res transport.Result
	req, err := o.strategy.BuildRequest(ctx, o.store, rec)
	switch {
	case err == nil:
		res = o.sender.Send(ctx, req)
		if !t.Current() {
			return stepStale
		}
	case errors.Is(err, ErrPrecondition):
		res = transport.Result{Outcome: transport.OutcomeRetryable, Err: err}
	case o.checkFatal(err):
		return stepFatal
	default:
		reason := "build_request"
		if errors.Is(err, ErrMalformed) {
			reason = "malformed"
		}
		return o.discard(ctx, rec, reason, err)
	}

	if res.Outcome == transport.OutcomeRetryable {
		return o.retryable(ctx, rec, res)
	}
	return o.complete(ctx, rec, res)
}

// complete handles Success and Terminal outcomes.
func (o *Orchestrator) complete(ctx context.Context, rec *store.Record, res transport.Result) step {
	if err := o.strategy.Complete(ctx, o.store, rec, res); err != nil {
		if o.checkFatal(err) {
			return stepFatal
		}
		o.log.Error().Err(err).Str("record_id", rec.ID).Msg("failed to apply outcome")
		return o.retryable(ctx, rec, transport.Result{
			Outcome:    transport.OutcomeRetryable,
			StatusCode: res.StatusCode,
			Err:        err,
		})
	}

	if _, err := o.store.Delete(ctx, rec); err != nil {
		o.log.Error().Err(err).Str("record_id", rec.ID).Msg("failed to delete delivered record")
		return o.retryable(ctx, rec, transport.Result{
			Outcome:    transport.OutcomeRetryable,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("delete record: %w", err),
		})
	}

	if res.Outcome == transport.OutcomeTerminal {
		o.log.Warn().
			Str("record_id", rec.ID).
			Int("status", res.StatusCode).
			Str("error", res.Message()).
			Msg("server rejected record, dropping it")
		o.emit(events.Event{
			Type:     events.TypeTerminal,
			RecordID: rec.ID,
			Attempts: rec.Attempts,
			Status:   res.StatusCode,
			Message:  res.Message(),
		})
		return stepNext
	}

	o.emit(events.Event{
		Type:     events.TypeSent,
		RecordID: rec.ID,
		Attempts: rec.Attempts,
		Status:   res.StatusCode,
	})
	return stepNext
}

// retryable records a failed attempt. The record is abandoned once its
// attempt counter reaches the limit.
func (o *Orchestrator) retryable(ctx context.Context, rec *store.Record, res transport.Result) step {
	n, err := o.store.IncrementAttempts(ctx, rec, res.Message())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return stepNext
	case err != nil:
		if o.checkFatal(err) {
			return stepFatal
		}
		o.log.Error().Err(err).Str("record_id", rec.ID).Msg("failed to record attempt")
		return stepRetry
	}

	if n >= o.maxAttempts {
		if _, err := o.store.Delete(ctx, rec); err != nil {
			o.log.Error().Err(err).Str("record_id", rec.ID).Msg("failed to delete abandoned record")
			return stepRetry
		}
		metrics.RecordsAbandoned.WithLabelValues(string(o.strategy.Channel())).Inc()
		o.log.Warn().
			Str("record_id", rec.ID).
			Int("attempts", n).
			Str("last_error", res.Message()).
			Msg("record abandoned after too many attempts")
		o.emit(events.Event{
			Type:     events.TypeAbandoned,
			RecordID: rec.ID,
			Attempts: n,
			Status:   res.StatusCode,
			Message:  res.Message(),
		})
		return stepNext
	}

	o.emit(events.Event{
		Type:     events.TypeRetry,
		RecordID: rec.ID,
		Attempts: n,
		Status:   res.StatusCode,
		Message:  res.Message(),
	})
	return stepRetry
}

// discard deletes a record that can never be sent. Channel counters are not
// touched.
func (o *Orchestrator) discard(ctx context.Context, rec *store.Record, reason string, cause error) step {
	o.log.Error().Err(cause).Str("record_id", rec.ID).Str("reason", reason).Msg("discarding unsendable record")

	if _, err := o.store.Delete(ctx, rec); err != nil {
		o.log.Error().Err(err).Str("record_id", rec.ID).Msg("failed to delete unsendable record")
		return stepNext
	}
	metrics.RecordsDiscarded.WithLabelValues(string(o.strategy.Channel()), reason).Inc()
	o.emit(events.Event{
		Type:     events.TypeDiscarded,
		RecordID: rec.ID,
		Message:  cause.Error(),
	})
	return stepNext
}

func (o *Orchestrator) stopForRetry(ctx context.Context, key string) {
	b, err := o.scheduler.ScheduleBackoff(ctx, key, func() {
		o.enqueueDrain(modeNormal, nil)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.log.Error().Err(err).Str("key", key).Msg("failed to schedule backoff")
		}
		return
	}

	if !b.Scheduled {
		o.emit(events.Event{
			Type:     events.TypeBackoffExhausted,
			Attempts: b.Attempt,
			Message:  "automatic retries suspended until the next external trigger",
		})
		return
	}
	o.emit(events.Event{
		Type:     events.TypeBackoffScheduled,
		Attempts: b.Attempt,
		Delay:    b.Delay,
		Message:  key,
	})
}

func (o *Orchestrator) doneDraining(ctx context.Context) {
	if err := o.scheduler.ResetCounter(ctx); err != nil {
		o.log.Error().Err(err).Msg("failed to reset retry counter")
	}
	o.emit(events.Event{Type: events.TypeDrained})
}

func (o *Orchestrator) abort(err error) {
	o.log.Warn().Err(err).Msg("drain aborted")
	o.emit(events.Event{Type: events.TypeAborted, Message: err.Error()})
}

// checkFatal degrades the orchestrator on store corruption.
func (o *Orchestrator) checkFatal(err error) bool {
	if !errors.Is(err, store.ErrCorrupt) {
		return false
	}
	if o.degraded.CompareAndSwap(false, true) {
		o.log.Error().Err(err).Msg("record store corrupt, channel disabled until reset")
		o.emit(events.Event{Type: events.TypeFatal, Message: err.Error()})
	}
	return true
}

func (o *Orchestrator) emit(ev events.Event) {
	ev.Channel = o.strategy.Channel()
	o.emitter.Emit(ev)
}

func (o *Orchestrator) updatePending(ctx context.Context) {
	n, err := o.store.Count(ctx, o.strategy.Channel())
	if err != nil {
		return
	}
	metrics.PendingRecords.WithLabelValues(string(o.strategy.Channel())).Set(float64(n))
}

// halt cancels scheduled backoffs and invalidates the running drain.
func (o *Orchestrator) halt() {
	o.scheduler.CancelAll()
	o.startQueue.Reset(true)
}

// reset additionally drops queued record creation and clears the degraded
// state.
func (o *Orchestrator) reset() {
	o.halt()
	o.entityQueue.Reset(true)
	o.degraded.Store(false)
}

func (o *Orchestrator) status(ctx context.Context) (models.ChannelStatus, error) {
	ch := o.strategy.Channel()
	pending, err := o.store.Count(ctx, ch)
	if err != nil {
		return models.ChannelStatus{}, err
	}
	counter, err := o.scheduler.Counter(ctx)
	if err != nil {
		return models.ChannelStatus{}, err
	}
	return models.ChannelStatus{
		Channel:    ch,
		Pending:    pending,
		RetryCount: counter,
		QueuedJobs: o.startQueue.Pending(),
		Draining:   o.draining.Load() > 0,
		Degraded:   o.degraded.Load(),
		Backoffs:   o.scheduler.Scheduled(),
	}, nil
}
