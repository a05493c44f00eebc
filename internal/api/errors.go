// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/pushrelay/internal/engine"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/models"
)

// Error codes returned in models.APIError.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeInvalidBody      = "INVALID_BODY"
	codeUnknownChannel   = "UNKNOWN_CHANNEL"
	codeIdentity         = "IDENTITY_UNAVAILABLE"
	codeIdentityMode     = "IDENTITY_MODE_MISMATCH"
	codePermissionFixed  = "PERMISSION_NOT_SETTABLE"
	codeEngineClosed     = "ENGINE_CLOSED"
	codeSubmitDropped    = "SUBMIT_DROPPED"
	codeEngine           = "ENGINE_ERROR"
	codeRateLimit        = "RATE_LIMIT_EXCEEDED"
	codeRequestCanceled  = "REQUEST_CANCELED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeNotFound         = "NOT_FOUND"
)

// engineErrorStatus maps an engine error to an HTTP status and code.
func engineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrUnknownChannel):
		return http.StatusNotFound, codeUnknownChannel
	case errors.Is(err, engine.ErrPayloadType), errors.Is(err, models.ErrInvalidPayload):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusConflict, codeIdentity
	case errors.Is(err, engine.ErrReset):
		return http.StatusConflict, codeSubmitDropped
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable, codeEngineClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeRequestCanceled
	default:
		return http.StatusInternalServerError, codeEngine
	}
}
