// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

type mobileEventRequest struct {
	UserTag  string                 `json:"user_tag"`
	SID      string                 `json:"sid"`
	Name     string                 `json:"name"`
	Time     int64                  `json:"time"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Matching map[string]interface{} `json:"matching,omitempty"`
	UTM      *models.UTMData        `json:"utm,omitempty"`
}

// mobileEventStrategy sends custom analytics events. Events older than
// staleAfter are purged before every drain.
type mobileEventStrategy struct {
	baseStrategy
	staleAfter time.Duration
	now        func() time.Time
}

func newMobileEventStrategy(staleAfter time.Duration) *mobileEventStrategy {
	return &mobileEventStrategy{
		baseStrategy: baseStrategy{channel: models.ChannelMobileEvent},
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

func (s *mobileEventStrategy) Accept(payload interface{}) (interface{}, error) {
	p, ok := payload.(*models.MobileEventPayload)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: want *models.MobileEventPayload, got %T", ErrPayloadType, payload)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *mobileEventStrategy) Purge(ctx context.Context, st RecordStore) error {
	if s.staleAfter <= 0 {
		return nil
	}
	n, err := st.PurgeStale(ctx, s.channel, s.now().Add(-s.staleAfter))
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.RecordsDiscarded.WithLabelValues(string(s.channel), "stale").Add(float64(n))
		logging.Info().
			Str("channel", string(s.channel)).
			Int("purged", n).
			Dur("stale_after", s.staleAfter).
			Msg("purged stale mobile events")
	}
	return nil
}

func (s *mobileEventStrategy) BuildRequest(_ context.Context, _ RecordStore, rec *store.Record) (*transport.Request, error) {
	var p models.MobileEventPayload
	if err := rec.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := p.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &transport.Request{
		Channel:  models.ChannelMobileEvent,
		RecordID: rec.ID,
		Path:     transport.PathMobileEvent,
		Body: mobileEventRequest{
			UserTag:  rec.UserTag,
			SID:      p.SID,
			Name:     p.Name,
			Time:     rec.CreatedAt.Unix(),
			Fields:   p.Fields,
			Matching: p.Matching,
			UTM:      p.UTM,
		},
	}, nil
}

var _ Strategy = (*mobileEventStrategy)(nil)
