// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package websocket streams delivery lifecycle events to the host application
over a WebSocket connection.

The Hub subscribes to the event bus and fans every event out to the
connected clients. It runs as a supervised service; the control API mounts
it at GET /v1/events.

Message format (server to client):

	{"type": "event", "data": {"id": "...", "type": "sent", "channel": "push_event", ...}}

Clients may send {"type": "ping"} and receive {"type": "pong"}. Protocol
level pings keep idle connections alive.

A client whose send buffer is full is disconnected rather than slowing the
hub down; it can reconnect and read GET /v1/status to resynchronize.

Origins: connections without an Origin header (native host applications)
are accepted, as are browser origins on a loopback host. Everything else is
rejected.
*/
package websocket
