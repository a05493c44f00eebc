// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"fmt"

	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

// subscribeRequest is the wire body of a subscription change.
type subscribeRequest struct {
	UserTag       string                 `json:"user_tag"`
	Device        models.TokenPayload    `json:"device"`
	Time          int64                  `json:"time"`
	Status        string                 `json:"status"`
	Sync          *int                   `json:"sync,omitempty"`
	ProfileFields map[string]interface{} `json:"profile_fields,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
	Cats          []models.CategoryData  `json:"cats,omitempty"`
	Replace       *bool                  `json:"replace,omitempty"`
	SkipTriggers  *bool                  `json:"skip_triggers,omitempty"`
}

type subscribeStrategy struct {
	baseStrategy
	permission PermissionChecker
}

func newSubscribeStrategy(permission PermissionChecker) *subscribeStrategy {
	return &subscribeStrategy{
		baseStrategy: baseStrategy{channel: models.ChannelSubscribe},
		permission:   permission,
	}
}

func (s *subscribeStrategy) Accept(payload interface{}) (interface{}, error) {
	p, ok := payload.(*models.SubscribePayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: want *models.SubscribePayload, got %T", ErrPayloadType, payload)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *subscribeStrategy) Prepare(context.Context) error {
	if !s.permission.NotificationsAllowed() {
		return ErrPermissionDenied
	}
	return nil
}

func (s *subscribeStrategy) BuildRequest(ctx context.Context, st RecordStore, rec *store.Record) (*transport.Request, error) {
	var p models.SubscribePayload
	if err := rec.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := p.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// A subscription is bound to a device token the server already knows.
	device, err := st.ConfirmedToken(ctx)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no confirmed device token", ErrPrecondition)
	}

	return &transport.Request{
		Channel:  models.ChannelSubscribe,
		RecordID: rec.ID,
		Path:     transport.PathSubscribe,
		Body: subscribeRequest{
			UserTag:       rec.UserTag,
			Device:        *device,
			Time:          rec.CreatedAt.Unix(),
			Status:        p.Status,
			Sync:          p.Sync,
			ProfileFields: p.ProfileFields,
			Fields:        p.CustomFields,
			Cats:          p.Cats,
			Replace:       p.Replace,
			SkipTriggers:  p.SkipTriggers,
		},
	}, nil
}

var _ Strategy = (*subscribeStrategy)(nil)
