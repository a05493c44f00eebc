// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

// Message types.
const (
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Source provides the event stream. *events.Bus implements it.
type Source interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

var _ Source = (*events.Bus)(nil)

// ErrSourceClosed is returned by Serve when the event stream ends.
var ErrSourceClosed = errors.New("event source closed")

// Hub maintains the set of connected clients and broadcasts events to them.
type Hub struct {
	source   Source
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub reading from source.
func NewHub(source Source) *Hub {
	h := &Hub{
		source:  source,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// Serve implements suture.Service. On return every client is disconnected.
func (h *Hub) Serve(ctx context.Context) error {
	stream, err := h.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer h.closeAllClients()

	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Str("component", "event-stream").
				Int("clients_closed", h.ClientCount()).
				Msg("event stream stopped")
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSourceClosed
			}
			h.broadcast(Message{Type: MessageTypeEvent, Data: ev})
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string {
	return "event-stream"
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h, conn)
	h.register(client)
	client.Start()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.EventStreamClients.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("event stream client connected")
}

// unregister removes c and closes its send channel. It is a no-op for a
// client that was already removed.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.EventStreamClients.Set(float64(n))
		logging.Info().Int("total_clients", n).Msg("event stream client disconnected")
	}
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		select {
		case c.send <- msg:
		default:
			logging.Warn().Uint64("client_id", c.id).Msg("event stream client too slow, disconnecting")
			delete(h.clients, c)
			close(c.send)
		}
	}
	metrics.EventStreamClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.EventStreamClients.Set(0)
}

// checkOrigin accepts native clients, which send no Origin, and browsers
// on a loopback host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}

	logging.Warn().Str("origin", sanitizeOrigin(origin)).Msg("event stream connection rejected from non-loopback origin")
	return false
}

func sanitizeOrigin(s string) string {
	const maxLen = 256
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	out := []rune(s)
	for i, r := range out {
		if r < 0x20 || r == 0x7F {
			out[i] = '?'
		}
	}
	return string(out)
}
