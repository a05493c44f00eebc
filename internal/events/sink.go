// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/logging"
)

// LogSink writes every event to the structured log. It runs as a supervised
// service.
type LogSink struct {
	bus *Bus
	log zerolog.Logger
}

// NewLogSink creates a sink reading from bus.
func NewLogSink(bus *Bus) *LogSink {
	return &LogSink{bus: bus, log: logging.ForComponent("events")}
}

// Serve implements suture.Service.
func (s *LogSink) Serve(ctx context.Context) error {
	stream, err := s.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrBusClosed
			}
			s.write(ev)
		}
	}
}

func (s *LogSink) write(ev Event) {
	e := s.log.Info()
	switch ev.Type {
	case TypeFatal:
		e = s.log.Error()
	case TypeTerminal, TypeAbandoned, TypeAborted, TypeBackoffExhausted:
		e = s.log.Warn()
	case TypeSent, TypeQueued:
		e = s.log.Debug()
	}

	e.Str("event", string(ev.Type)).
		Str("event_id", ev.ID).
		Str("channel", string(ev.Channel))
	if ev.RecordID != "" {
		e.Str("record_id", ev.RecordID)
	}
	if ev.Attempts > 0 {
		e.Int("attempts", ev.Attempts)
	}
	if ev.Status > 0 {
		e.Int("status", ev.Status)
	}
	if ev.Delay > 0 {
		e.Dur("delay", ev.Delay)
	}
	e.Msg(ev.Message)
}

// String implements fmt.Stringer for suture logging.
func (s *LogSink) String() string {
	return "event-log-sink"
}
