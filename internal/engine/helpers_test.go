// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

const testUser = "user-1"

// recorder captures emitted events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ events.Type, ch models.Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ && (ch == "" || ev.Channel == ch) {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ events.Type) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

// fakeSender answers with a scripted function and tracks concurrency.
type fakeSender struct {
	mu        sync.Mutex
	requests  []*transport.Request
	respond   func(call int, req *transport.Request) transport.Result
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func newFakeSender(respond func(call int, req *transport.Request) transport.Result) *fakeSender {
	return &fakeSender{respond: respond}
}

func (f *fakeSender) Send(_ context.Context, req *transport.Request) transport.Result {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()

	if f.respond == nil {
		return transport.Result{Outcome: transport.OutcomeSuccess, StatusCode: 200}
	}
	return f.respond(call, req)
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSender) recordIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		ids = append(ids, r.RecordID)
	}
	return ids
}

func ok() transport.Result {
	return transport.Result{Outcome: transport.OutcomeSuccess, StatusCode: 200}
}

func unavailable() transport.Result {
	return transport.Result{Outcome: transport.OutcomeRetryable, StatusCode: 503}
}

// harness bundles a service with its collaborators.
type harness struct {
	svc      *Service
	store    *store.Store
	sender   *fakeSender
	monitor  *connectivity.Monitor
	identity *identity.Static
	perm     *Permission
	events   *recorder
	wrap     func(*store.Store) RecordStore
}

type harnessOption func(*Config, *harness)

func withUnit(d time.Duration) harnessOption {
	return func(c *Config, _ *harness) { c.Unit = d }
}

func withMaxLocal(n int) harnessOption {
	return func(c *Config, _ *harness) { c.MaxLocalRetryCount = n }
}

func withBudget(d time.Duration) harnessOption {
	return func(c *Config, _ *harness) { c.BackgroundBudget = d }
}

func withMaxAttempts(n int) harnessOption {
	return func(c *Config, _ *harness) {
		for ch := range c.MaxAttempts {
			c.MaxAttempts[ch] = n
		}
	}
}

func withStore(wrap func(*store.Store) RecordStore) harnessOption {
	return func(_ *Config, h *harness) { h.wrap = wrap }
}

func withOffline() harnessOption {
	return func(_ *Config, h *harness) { h.monitor = connectivity.NewMonitor(false) }
}

func newHarness(t *testing.T, sender *fakeSender, opts ...harnessOption) *harness {
	t.Helper()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}

	h := &harness{
		store:    st,
		sender:   sender,
		monitor:  connectivity.NewMonitor(true),
		identity: identity.NewStatic(testUser),
		perm:     NewPermission(true),
		events:   &recorder{},
	}

	cfg := DefaultConfig()
	cfg.Unit = time.Hour
	for _, opt := range opts {
		opt(&cfg, h)
	}

	var rs RecordStore = st
	if h.wrap != nil {
		rs = h.wrap(st)
	}

	svc, err := New(Deps{
		Store:      rs,
		Sender:     sender,
		Identity:   h.identity,
		Gate:       h.monitor,
		Events:     h.events,
		Permission: h.perm,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc

	t.Cleanup(func() {
		svc.Close()
		_ = st.Close()
	})
	return h
}

func (h *harness) confirmToken(t *testing.T) {
	t.Helper()
	if err := h.store.SetConfirmedToken(context.Background(), &models.TokenPayload{Provider: "fcm", Token: "device-token-1"}); err != nil {
		t.Fatalf("SetConfirmedToken: %v", err)
	}
}

func (h *harness) insert(t *testing.T, ch models.Channel, payload interface{}) *store.Record {
	t.Helper()
	rec, err := store.NewRecord(ch, testUser, payload)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	saved, err := h.store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return saved
}

func (h *harness) pending(t *testing.T, ch models.Channel) []*store.Record {
	t.Helper()
	recs, err := h.store.FetchAll(context.Background(), ch, testUser)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	return recs
}

func (h *harness) counter(t *testing.T, ch models.Channel) int {
	t.Helper()
	n, err := h.store.RetryCount(context.Background(), ch)
	if err != nil {
		t.Fatalf("RetryCount: %v", err)
	}
	return n
}

func (h *harness) orch(ch models.Channel) *Orchestrator {
	return h.svc.orchestrators[ch]
}

func subscribed() *models.SubscribePayload {
	return &models.SubscribePayload{Status: models.StatusSubscribed}
}

func pushOpen(uid string) *models.PushEventPayload {
	return &models.PushEventPayload{UID: uid, Type: models.PushEventOpen}
}

// eventually polls cond until it holds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
