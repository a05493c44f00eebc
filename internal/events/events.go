// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package events publishes delivery lifecycle events to the host
// application.
//
// Every state transition of a channel orchestrator (record queued, sent,
// retried, abandoned, drain finished, backoff scheduled) is emitted as an
// Event on an in-process watermill gochannel. Emitting never blocks and never
// fails the caller; subscribers that fall behind only delay their own copy.
// Delivery order across events is not guaranteed.
package events

import (
	"time"

	"github.com/tomtom215/pushrelay/internal/models"
)

// Type identifies a lifecycle transition.
type Type string

// Event types.
const (
	TypeQueued           Type = "queued"
	TypeSent             Type = "sent"
	TypeRetry            Type = "retry"
	TypeTerminal         Type = "terminal"
	TypeAbandoned        Type = "abandoned"
	TypeDiscarded        Type = "discarded"
	TypeDrained          Type = "drained"
	TypeBackoffScheduled Type = "backoff_scheduled"
	TypeBackoffExhausted Type = "backoff_exhausted"
	TypeAborted          Type = "aborted"
	TypeFatal            Type = "fatal"
	TypeReset            Type = "reset"
)

// Event is one observable transition.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Channel   models.Channel `json:"channel,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
	Status    int            `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Delay     time.Duration  `json:"delay,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Emitter accepts events. Implementations must not block.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})
