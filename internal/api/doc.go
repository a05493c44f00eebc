// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package api provides the local control API of the PushRelay agent.

The host application drives the delivery engine through it: it submits
records, triggers channels, reports permission and identity changes and
reads the engine's status. The API binds to loopback by default and is
not meant to be exposed.

Endpoints:

	POST /v1/subscribe            submit a subscription change
	POST /v1/token                submit a new device token
	POST /v1/push-events          report a push delivery or open
	POST /v1/mobile-events        submit a custom analytics event
	POST /v1/start/{channel}      external trigger for one channel
	POST /v1/start                external trigger for every channel
	POST /v1/background-refresh   run one bounded background pass
	POST /v1/reset                wipe all local delivery state
	PUT  /v1/permission           update the notification permission
	PUT  /v1/identity             update the current user
	GET  /v1/status               per-channel backlog and retry state
	GET  /v1/events               lifecycle event stream (WebSocket)
	GET  /health/live             liveness
	GET  /health/ready            readiness
	GET  /metrics                 Prometheus metrics

Every JSON response uses the models.APIResponse envelope. Request bodies
are validated with go-playground/validator struct tags; failures return
400 with code VALIDATION_ERROR.
*/
package api
