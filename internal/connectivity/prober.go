// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/pushrelay/internal/logging"
)

// Prober periodically checks reachability of a URL and feeds a Monitor.
// Any HTTP response counts as online; only transport errors count as
// offline.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
}

// NewProber creates a prober. An empty url disables probing and leaves the
// monitor in its initial state.
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration) *Prober {
	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
	}
}

// Probe performs a single check and updates the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err != nil {
		logging.Error().Err(err).Str("url", p.url).Msg("invalid probe URL")
		return p.monitor.Online()
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return p.monitor.Online()
		}
		logging.Debug().Err(err).Str("url", p.url).Msg("connectivity probe failed")
		p.monitor.SetOnline(false)
		return false
	}
	_ = resp.Body.Close()

	p.monitor.SetOnline(true)
	return true
}

// Serve implements suture.Service.
func (p *Prober) Serve(ctx context.Context) error {
	if p.url == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (p *Prober) String() string {
	return "connectivity-prober"
}
