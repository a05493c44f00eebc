// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger routes watermill's internal logging into zerolog.
type WatermillLogger struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

// NewWatermillLogger wraps l as a watermill.LoggerAdapter.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatermillLogger(l zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: l}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.write(w.logger.Error().Err(err), msg, fields)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.write(w.logger.Info(), msg, fields)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.write(w.logger.Debug(), msg, fields)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.write(w.logger.Trace(), msg, fields)
}

// With returns a logger carrying extra fields on every entry.
func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{
		logger: w.logger,
		fields: w.fields.Add(fields),
	}
}

func (w *WatermillLogger) write(e *zerolog.Event, msg string, fields watermill.LogFields) {
	if e == nil {
		return
	}
	e.Fields(map[string]interface{}(w.fields.Add(fields))).Msg(msg)
}
