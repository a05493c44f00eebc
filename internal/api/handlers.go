// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pushrelay/internal/engine"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
)

// Engine is the part of engine.Service the API drives.
type Engine interface {
	Start(ctx context.Context, ch models.Channel) error
	StartAll(ctx context.Context) error
	Submit(ctx context.Context, ch models.Channel, payload interface{}) (*store.Record, error)
	ResetAll(ctx context.Context) error
	BackgroundRefresh(ctx context.Context) error
	Status(ctx context.Context) (*models.StatusResponse, error)
	SetPermission(ctx context.Context, allowed bool) (bool, error)
}

var _ Engine = (*engine.Service)(nil)

// Handler serves the control API.
type Handler struct {
	engine    Engine
	identity  identity.Resolver
	stream    http.Handler
	startTime time.Time
}

// NewHandler creates a Handler. id may be nil, in which case PUT
// /v1/identity is rejected.
func NewHandler(e Engine, id identity.Resolver) *Handler {
	return &Handler{
		engine:    e,
		identity:  id,
		startTime: time.Now(),
	}
}

// SetEventStream mounts stream at GET /v1/events. It must be called before
// NewRouter.
func (h *Handler) SetEventStream(stream http.Handler) {
	h.stream = stream
}

// PermissionRequest is the body of PUT /v1/permission.
type PermissionRequest struct {
	Allowed *bool `json:"allowed" validate:"required"`
}

// IdentityRequest is the body of PUT /v1/identity. Exactly one field is
// used, depending on the configured identity mode.
type IdentityRequest struct {
	UserTag string `json:"user_tag,omitempty" validate:"omitempty,max=512"`
	JWT     string `json:"jwt,omitempty" validate:"omitempty,max=8192"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Online *bool  `json:"online,omitempty"`
}

// Subscribe handles POST /v1/subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body models.SubscribePayload
	if !decodeBody(w, r, &body) {
		return
	}
	h.submit(w, r, models.ChannelSubscribe, &body)
}

// UpdateToken handles POST /v1/token.
func (h *Handler) UpdateToken(w http.ResponseWriter, r *http.Request) {
	var body models.TokenPayload
	if !decodeBody(w, r, &body) {
		return
	}
	h.submit(w, r, models.ChannelTokenUpdate, &body)
}

// PushEvent handles POST /v1/push-events.
func (h *Handler) PushEvent(w http.ResponseWriter, r *http.Request) {
	var body models.PushEventPayload
	if !decodeBody(w, r, &body) {
		return
	}
	h.submit(w, r, models.ChannelPushEvent, &body)
}

// MobileEvent handles POST /v1/mobile-events.
func (h *Handler) MobileEvent(w http.ResponseWriter, r *http.Request) {
	var body models.MobileEventPayload
	if !decodeBody(w, r, &body) {
		return
	}
	h.submit(w, r, models.ChannelMobileEvent, &body)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, ch models.Channel, payload interface{}) {
	rec, err := h.engine.Submit(r.Context(), ch, payload)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondData(w, http.StatusAccepted, models.AcceptedResponse{
		Channel:  ch,
		RecordID: rec.ID,
		Queued:   true,
	})
}

// StartChannel handles POST /v1/start/{channel}.
func (h *Handler) StartChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := models.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, codeUnknownChannel, err.Error(), nil)
		return
	}
	if err := h.engine.Start(r.Context(), ch); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, models.AcceptedResponse{Channel: ch, Queued: true})
}

// StartAll handles POST /v1/start.
func (h *Handler) StartAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartAll(r.Context()); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, map[string]interface{}{"started": models.Channels})
}

// BackgroundRefresh handles POST /v1/background-refresh. It blocks until
// the pass completes or its budget expires.
func (h *Handler) BackgroundRefresh(w http.ResponseWriter, r *http.Request) {
	err := h.engine.BackgroundRefresh(r.Context())
	switch {
	case err == nil:
		respondData(w, http.StatusOK, map[string]string{"result": "completed"})
	case errors.Is(err, engine.ErrBudgetExpired):
		respondData(w, http.StatusOK, map[string]string{"result": "expired"})
	default:
		respondEngineError(w, r, err)
	}
}

// Reset handles POST /v1/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetAll(r.Context()); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]bool{"reset": true})
}

// SetPermission handles PUT /v1/permission.
func (h *Handler) SetPermission(w http.ResponseWriter, r *http.Request) {
	var body PermissionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	applied, err := h.engine.SetPermission(r.Context(), *body.Allowed)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if !applied {
		respondError(w, r, http.StatusConflict, codePermissionFixed,
			"notification permission is managed by the host platform", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]bool{"allowed": *body.Allowed})
}

// SetIdentity handles PUT /v1/identity. A new identity triggers every
// channel so records held back for a missing user are retried.
func (h *Handler) SetIdentity(w http.ResponseWriter, r *http.Request) {
	var body IdentityRequest
	if !decodeBody(w, r, &body) {
		return
	}

	switch id := h.identity.(type) {
	case *identity.Static:
		if body.JWT != "" {
			respondError(w, r, http.StatusConflict, codeIdentityMode, "identity mode is static; send user_tag", nil)
			return
		}
		id.Set(body.UserTag)
	case *identity.JWTResolver:
		if body.UserTag != "" {
			respondError(w, r, http.StatusConflict, codeIdentityMode, "identity mode is jwt; send jwt", nil)
			return
		}
		id.SetToken(body.JWT)
	default:
		respondError(w, r, http.StatusConflict, codeIdentityMode, "identity cannot be changed at runtime", nil)
		return
	}

	if err := h.engine.StartAll(r.Context()); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]bool{"updated": true})
}

// Status handles GET /v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, st)
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready handles GET /health/ready. The agent is ready while the engine
// answers status queries.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, codeEngineClosed, "engine not ready", err)
		return
	}
	online := st.Online
	respondData(w, http.StatusOK, HealthResponse{
		Status: "ready",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Online: &online,
	})
}
