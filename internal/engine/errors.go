// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import "errors"

var (
	// ErrUnknownChannel is returned for a channel the service does not run.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")

	// ErrPermissionDenied is returned by a strategy's pre-send check when
	// the user has not allowed notifications. It is retryable.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrPrecondition marks a request that cannot be built yet because
	// local state is missing. It is retryable and never reaches the server.
	ErrPrecondition = errors.New("local precondition missing")

	// ErrMalformed marks a stored record that can never be sent.
	ErrMalformed = errors.New("malformed record")

	// ErrPayloadType is returned by Submit for a payload of the wrong type.
	ErrPayloadType = errors.New("payload type does not match channel")

	// ErrReset is returned by Submit when a reset discarded the record
	// before it was stored.
	ErrReset = errors.New("submit dropped by reset")

	// ErrBudgetExpired is returned by BackgroundRefresh when the budget ran
	// out before every drain finished.
	ErrBudgetExpired = errors.New("background budget expired")
)
