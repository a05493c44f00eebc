// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package models

import (
	"time"
)

// APIResponse is the envelope for every control API response.
//
// Status field values:
//   - "success": see Data
//   - "error": see Error
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "VALIDATION_ERROR",
//	    "message": "uid is required",
//	    "details": {"field": "uid"}
//	  },
//	  "metadata": {"timestamp": "2026-10-18T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid request body
//   - UNKNOWN_CHANNEL: channel path parameter is not one of the four channels
//   - ENGINE_ERROR: the delivery engine refused the operation
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AcceptedResponse is returned when an operation was queued for delivery.
type AcceptedResponse struct {
	Channel  Channel `json:"channel"`
	RecordID string  `json:"record_id,omitempty"`
	Queued   bool    `json:"queued"`
}

// ChannelStatus describes one channel's backlog and retry position.
type ChannelStatus struct {
	Channel    Channel `json:"channel"`
	Pending    int     `json:"pending"`
	RetryCount int     `json:"retry_count"`
	QueuedJobs int     `json:"queued_jobs"`
	Draining   bool    `json:"draining"`
	Degraded   bool    `json:"degraded"`
	Backoffs   int     `json:"scheduled_backoffs"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Online   bool            `json:"online"`
	Channels []ChannelStatus `json:"channels"`
}
