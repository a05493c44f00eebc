// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package transport sends pending records to the marketing server and
// classifies each response into one of three outcomes.
//
// Classification:
//
//	2xx                         Success
//	5xx, 429, network failure   Retryable
//	open circuit breaker        Retryable
//	other 4xx                   Terminal
//
// Only Retryable outcomes count against the circuit breaker. Lower layers
// never return raw errors to the orchestrators; every failure is folded into
// a Result.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/pushrelay/internal/models"
)

// Server endpoints, relative to the configured base URL.
const (
	PathSubscribe   = "/subscription/push/subscribe"
	PathTokenUpdate = "/subscription/push/update"
	PathPushEvent   = "/event/push/" // + deliver | open
	PathMobileEvent = "/event/post"
)

// Outcome is the three-way classification of a send.
type Outcome int

// Outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request is one outbound call.
type Request struct {
	Channel  models.Channel
	RecordID string
	Path     string
	Body     interface{}
}

// Result is the classified response.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
	Duration   time.Duration
}

// Message returns a short description for logs and events.
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	}
	return r.Outcome.String()
}

// Sender delivers requests to the server.
type Sender interface {
	Send(ctx context.Context, req *Request) Result
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req *Request) Result

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, req *Request) Result { return f(ctx, req) }

// ClassifyStatus maps an HTTP status code to an outcome.
func ClassifyStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == 429:
		return OutcomeRetryable
	case code >= 500:
		return OutcomeRetryable
	default:
		return OutcomeTerminal
	}
}
