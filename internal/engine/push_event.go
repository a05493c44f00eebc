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

type pushEventRequest struct {
	UserTag string `json:"user_tag"`
	UID     string `json:"uid"`
	Time    int64  `json:"time"`
}

// pushEventStrategy reports push deliveries and opens. With perRecord set,
// a failed event gets its own backoff key so retries of different pushes do
// not replace each other.
type pushEventStrategy struct {
	baseStrategy
	perRecord bool
}

func newPushEventStrategy(perRecord bool) *pushEventStrategy {
	return &pushEventStrategy{
		baseStrategy: baseStrategy{channel: models.ChannelPushEvent},
		perRecord:    perRecord,
	}
}

func (s *pushEventStrategy) Accept(payload interface{}) (interface{}, error) {
	p, ok := payload.(*models.PushEventPayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: want *models.PushEventPayload, got %T", ErrPayloadType, payload)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *pushEventStrategy) BuildRequest(_ context.Context, _ RecordStore, rec *store.Record) (*transport.Request, error) {
	var p models.PushEventPayload
	if err := rec.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := p.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &transport.Request{
		Channel:  models.ChannelPushEvent,
		RecordID: rec.ID,
		Path:     transport.PathPushEvent + p.Type,
		Body: pushEventRequest{
			UserTag: rec.UserTag,
			UID:     p.UID,
			Time:    rec.CreatedAt.Unix(),
		},
	}, nil
}

func (s *pushEventStrategy) BackoffKey(rec *store.Record) string {
	if s.perRecord && rec != nil {
		return string(s.channel) + "/" + rec.ID
	}
	return string(s.channel)
}

var _ Strategy = (*pushEventStrategy)(nil)
