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

// tokenUpdateRequest is the wire body of a token rotation.
type tokenUpdateRequest struct {
	UserTag  string               `json:"user_tag"`
	OldToken *models.TokenPayload `json:"old_token,omitempty"`
	NewToken models.TokenPayload  `json:"new_token"`
}

// tokenUpdateStrategy keeps at most one pending token per user: the most
// recent one. It is compared against the last token the server confirmed
// and only sent when it differs.
type tokenUpdateStrategy struct {
	baseStrategy
}

func newTokenUpdateStrategy() *tokenUpdateStrategy {
	return &tokenUpdateStrategy{baseStrategy: baseStrategy{channel: models.ChannelTokenUpdate}}
}

func (s *tokenUpdateStrategy) Accept(payload interface{}) (interface{}, error) {
	p, ok := payload.(*models.TokenPayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: want *models.TokenPayload, got %T", ErrPayloadType, payload)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// Insert replaces any pending token of the same user.
func (s *tokenUpdateStrategy) Insert(ctx context.Context, st RecordStore, rec *store.Record) (*store.Record, error) {
	existing, err := st.FetchAll(ctx, s.channel, rec.UserTag)
	if err != nil {
		return nil, err
	}
	for _, old := range existing {
		if _, err := st.Delete(ctx, old); err != nil {
			return nil, err
		}
	}
	return st.Insert(ctx, rec)
}

// Fetch returns the latest pending token, or nothing when it matches the
// confirmed token. Superseded and already-confirmed tokens are deleted.
func (s *tokenUpdateStrategy) Fetch(ctx context.Context, st RecordStore, userTag string) ([]*store.Record, error) {
	records, err := st.FetchAll(ctx, s.channel, userTag)
	if err != nil || len(records) == 0 {
		return nil, err
	}

	latest := records[len(records)-1]
	for _, old := range records[:len(records)-1] {
		if _, err := st.Delete(ctx, old); err != nil {
			return nil, err
		}
	}

	var pending models.TokenPayload
	if err := latest.DecodePayload(&pending); err != nil {
		// Let the send loop discard it.
		return []*store.Record{latest}, nil
	}

	confirmed, err := st.ConfirmedToken(ctx)
	if err != nil {
		return nil, err
	}
	if confirmed.Equal(&pending) {
		if _, err := st.Delete(ctx, latest); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return []*store.Record{latest}, nil
}

func (s *tokenUpdateStrategy) BuildRequest(ctx context.Context, st RecordStore, rec *store.Record) (*transport.Request, error) {
	var next models.TokenPayload
	if err := rec.DecodePayload(&next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := next.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	old, err := st.ConfirmedToken(ctx)
	if err != nil {
		return nil, err
	}

	return &transport.Request{
		Channel:  models.ChannelTokenUpdate,
		RecordID: rec.ID,
		Path:     transport.PathTokenUpdate,
		Body: tokenUpdateRequest{
			UserTag:  rec.UserTag,
			OldToken: old,
			NewToken: next,
		},
	}, nil
}

// Complete confirms the token on any non-retryable outcome so a rejected
// token is not resent forever.
func (s *tokenUpdateStrategy) Complete(ctx context.Context, st RecordStore, rec *store.Record, _ transport.Result) error {
	var next models.TokenPayload
	if err := rec.DecodePayload(&next); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return st.SetConfirmedToken(ctx, &next)
}

var _ Strategy = (*tokenUpdateStrategy)(nil)
