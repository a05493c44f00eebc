// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package metrics declares the Prometheus instrumentation of PushRelay:
// delivery outcomes per channel, backoff scheduling, record store latency,
// the outbound circuit breaker and the control API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery Metrics
	RecordsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_records_sent_total",
			Help: "Send attempts by channel and outcome (success, retryable, terminal)",
		},
		[]string{"channel", "outcome"},
	)

	RecordsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_records_queued_total",
			Help: "Records persisted for delivery",
		},
		[]string{"channel"},
	)

	RecordsAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_records_abandoned_total",
			Help: "Records deleted after reaching the per-record attempt limit",
		},
		[]string{"channel"},
	)

	RecordsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_records_discarded_total",
			Help: "Records dropped for non-retryable local reasons (malformed payload, request build failure)",
		},
		[]string{"channel", "reason"},
	)

	PendingRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pushrelay_pending_records",
			Help: "Records waiting for delivery, as of the last drain",
		},
		[]string{"channel"},
	)

	Drains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_drains_total",
			Help: "Drain runs by channel and result (drained, stopped, aborted, stale)",
		},
		[]string{"channel", "result"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushrelay_send_duration_seconds",
			Help:    "Duration of one request to the server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// Retry Metrics
	BackoffsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_backoffs_scheduled_total",
			Help: "Automatic retries scheduled",
		},
		[]string{"channel"},
	)

	BackoffsExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_backoffs_exhausted_total",
			Help: "Retries skipped because the channel counter passed its limit",
		},
		[]string{"channel"},
	)

	BackoffsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_backoffs_fired_total",
			Help: "Scheduled retries whose timer fired",
		},
		[]string{"channel"},
	)

	RetryCounter = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pushrelay_retry_counter",
			Help: "Persisted backoff counter per channel",
		},
		[]string{"channel"},
	)

	BackgroundRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_background_refreshes_total",
			Help: "Background refresh passes by result (completed, expired, failed)",
		},
		[]string{"result"},
	)

	// Record Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushrelay_store_operation_duration_seconds",
			Help:    "Duration of record store operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	StoreCompactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushrelay_store_compactions_total",
			Help: "Value-log garbage collection runs",
		},
	)

	// Connectivity Metrics
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushrelay_online",
			Help: "1 when the server is reachable, 0 otherwise",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pushrelay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event Stream Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_events_emitted_total",
			Help: "Lifecycle events published to the application stream",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushrelay_events_dropped_total",
			Help: "Lifecycle events dropped because a subscriber buffer was full",
		},
	)

	EventStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushrelay_event_stream_clients",
			Help: "Connected WebSocket event stream clients",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_api_requests_total",
			Help: "Control API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushrelay_api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSend records one send attempt.
func RecordSend(channel, outcome string, duration time.Duration) {
	RecordsSent.WithLabelValues(channel, outcome).Inc()
	SendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordAPIRequest records a control API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetOnline updates the connectivity gauge.
func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}
