// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/pushrelay/internal/engine"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

var (
	_ suture.Service = (*BackgroundRefreshService)(nil)
	_ Refresher      = (*engine.Service)(nil)
)

type fakeRefresher struct {
	calls atomic.Int32
	err   func(call int32) error
}

func (f *fakeRefresher) BackgroundRefresh(context.Context) error {
	n := f.calls.Add(1)
	if f.err == nil {
		return nil
	}
	return f.err(n)
}

func TestNewBackgroundRefreshService_DefaultInterval(t *testing.T) {
	svc := NewBackgroundRefreshService(&fakeRefresher{}, 0)
	if svc.interval != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", svc.interval)
	}
	if svc.String() != "background-refresh" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestBackgroundRefreshService_Serve(t *testing.T) {
	t.Run("refreshes on every tick", func(t *testing.T) {
		r := &fakeRefresher{}
		svc := NewBackgroundRefreshService(r, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve = %v, want context.DeadlineExceeded", err)
		}
		if n := r.calls.Load(); n < 2 {
			t.Errorf("refreshed %d times, want at least 2", n)
		}
	})

	t.Run("expired budget keeps the service running", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.BackgroundRefreshes.WithLabelValues("expired"))
		r := &fakeRefresher{err: func(int32) error {
			return fmt.Errorf("%w: deadline", engine.ErrBudgetExpired)
		}}
		svc := NewBackgroundRefreshService(r, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve = %v, want context.DeadlineExceeded", err)
		}
		if n := r.calls.Load(); n < 2 {
			t.Errorf("refreshed %d times, want at least 2", n)
		}
		if after := testutil.ToFloat64(metrics.BackgroundRefreshes.WithLabelValues("expired")); after <= before {
			t.Error("expired refreshes not counted")
		}
	})

	t.Run("closed engine stops the service", func(t *testing.T) {
		r := &fakeRefresher{err: func(int32) error { return engine.ErrClosed }}
		svc := NewBackgroundRefreshService(r, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := svc.Serve(ctx); err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
		if n := r.calls.Load(); n != 1 {
			t.Errorf("refreshed %d times, want 1", n)
		}
	})

	t.Run("other failures are logged and retried", func(t *testing.T) {
		r := &fakeRefresher{err: func(call int32) error {
			if call == 1 {
				return errors.New("store unavailable")
			}
			return nil
		}}
		svc := NewBackgroundRefreshService(r, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()

		_ = svc.Serve(ctx)
		if n := r.calls.Load(); n < 2 {
			t.Errorf("refreshed %d times, want at least 2", n)
		}
	})
}
