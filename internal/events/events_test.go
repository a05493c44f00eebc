// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestBus_EmitAndSubscribe(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	bus.Emit(Event{
		Type:     TypeAbandoned,
		Channel:  models.ChannelPushEvent,
		RecordID: "r1",
		Attempts: 5,
	})

	ev := receive(t, stream)
	if ev.Type != TypeAbandoned || ev.Channel != models.ChannelPushEvent || ev.RecordID != "r1" || ev.Attempts != 5 {
		t.Errorf("event = %+v", ev)
	}
	if ev.ID == "" {
		t.Error("ID not assigned")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp not assigned")
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	bus.Emit(Event{Type: TypeReset})

	if receive(t, a).Type != TypeReset || receive(t, b).Type != TypeReset {
		t.Fatal("both subscribers should see the event")
	}
}

func TestBus_EmitNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A subscriber that never reads.
	if _, err := bus.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Emit(Event{Type: TypeSent})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
}

func TestBus_PreservesEmitOrder(t *testing.T) {
	bus := NewBus(128)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		bus.Emit(Event{Type: TypeRetry, Attempts: i})
	}
	for i := 0; i < n; i++ {
		if ev := receive(t, stream); ev.Attempts != i {
			t.Fatalf("event %d has attempts %d, want %d", i, ev.Attempts, i)
		}
	}
}

func TestBus_DropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(metrics.EventsDropped)
	for i := 0; i < 10; i++ {
		bus.Emit(Event{Type: TypeSent, Attempts: i})
	}

	if got := testutil.ToFloat64(metrics.EventsDropped) - before; got != 8 {
		t.Errorf("dropped = %v, want 8", got)
	}
	for i := 0; i < 2; i++ {
		if ev := receive(t, stream); ev.Attempts != i {
			t.Errorf("buffered event %d has attempts %d", i, ev.Attempts)
		}
	}
	select {
	case ev := <-stream:
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	bus.Emit(Event{Type: TypeReset})

	if _, err := bus.Subscribe(ctx); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrBusClosed", err)
	}

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("unexpected event after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed by Close")
	}
}

func TestBus_SubscribeEndsWithContext(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-stream:
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestEmitterFunc(t *testing.T) {
	var got []Type
	var e Emitter = EmitterFunc(func(ev Event) { got = append(got, ev.Type) })

	e.Emit(Event{Type: TypeQueued})
	Discard.Emit(Event{Type: TypeQueued})

	if len(got) != 1 || got[0] != TypeQueued {
		t.Errorf("got = %v", got)
	}
}

func TestWatermillLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWatermillLogger(logging.NewTestLogger(&buf))

	l.With(watermill.LogFields{"topic": Topic}).Info("subscribed", watermill.LogFields{"subscriber": "s1"})
	l.Error("publish failed", errors.New("closed"), nil)

	out := buf.String()
	for _, want := range []string{`"topic":"pushrelay.events"`, `"subscriber":"s1"`, `"message":"subscribed"`, `"error":"closed"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestLogSink_Serve(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(0)
	defer bus.Close()

	sink := NewLogSink(bus)
	sink.log = logging.NewTestLogger(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	sink.write(Event{Type: TypeAbandoned, Channel: models.ChannelSubscribe, RecordID: "r9", Attempts: 5, Message: "gave up"})
	if !strings.Contains(buf.String(), `"record_id":"r9"`) {
		t.Errorf("sink output = %s", buf.String())
	}
	if sink.String() != "event-log-sink" {
		t.Errorf("String() = %q", sink.String())
	}
}
