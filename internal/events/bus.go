// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

// Topic is the watermill topic all events are published on.
const Topic = "pushrelay.events"

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 256

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus closed")

// Bus fans events out to in-process subscribers.
//
// Publishing waits for every subscriber's forwarder to take the message, so
// each subscriber sees events in emit order. Forwarders never block: the
// subscriber's channel is the only buffer, and an event that does not fit
// is dropped and counted in pushrelay_events_dropped_total.
type Bus struct {
	pubsub     *gochannel.GoChannel
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus. bufferSize <= 0 selects DefaultBufferSize.
func NewBus(bufferSize int64) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, NewWatermillLogger(logging.ForComponent("events")))

	return &Bus{pubsub: pubsub, bufferSize: int(bufferSize)}
}

// Emit publishes ev. ID and Timestamp are filled in when empty. Failures are
// logged and counted, never returned. Emit returns once every subscriber
// has buffered or dropped the event; it does not wait for readers.
func (b *Bus) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("channel", string(ev.Channel))

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logging.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to publish event")
		return
	}
	metrics.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
}

// Subscribe returns a channel of decoded events. The channel is closed when
// ctx is done or the bus is closed. Events arriving while the channel is
// full are dropped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}

	out := make(chan Event, b.bufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			err := json.Unmarshal(msg.Payload, &ev)
			if err != nil {
				msg.Ack()
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event")
				continue
			}

			select {
			case out <- ev:
			default:
				metrics.EventsDropped.Inc()
				logging.Debug().Str("type", string(ev.Type)).Msg("subscriber buffer full, event dropped")
			}
			msg.Ack()
		}
	}()

	return out, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
