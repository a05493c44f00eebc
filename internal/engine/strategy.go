// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"

	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

// Strategy carries everything that differs between channels.
type Strategy interface {
	Channel() models.Channel

	// Accept validates a submitted payload and returns the value to persist.
	Accept(payload interface{}) (interface{}, error)

	// Insert persists a new record. Most channels append; token updates
	// replace the pending token.
	Insert(ctx context.Context, st RecordStore, rec *store.Record) (*store.Record, error)

	// Prepare is the pre-send check run after connectivity is available.
	// ErrPermissionDenied schedules a backoff without contacting the server.
	Prepare(ctx context.Context) error

	// Purge drops records that must not be sent any more.
	Purge(ctx context.Context, st RecordStore) error

	// Fetch returns the records to send, oldest first.
	Fetch(ctx context.Context, st RecordStore, userTag string) ([]*store.Record, error)

	// BuildRequest turns a record into a server request. ErrPrecondition is
	// retryable; any other error discards the record.
	BuildRequest(ctx context.Context, st RecordStore, rec *store.Record) (*transport.Request, error)

	// Complete runs after a Success or Terminal outcome, before the record
	// is deleted. An error makes the outcome retryable.
	Complete(ctx context.Context, st RecordStore, rec *store.Record, res transport.Result) error

	// BackoffKey names the backoff scheduled for a retryable record.
	BackoffKey(rec *store.Record) string

	// StopOnRetry reports whether a normal drain stops at the first
	// retryable record.
	StopOnRetry() bool
}

// baseStrategy provides the common defaults.
type baseStrategy struct {
	channel models.Channel
}

func (b baseStrategy) Channel() models.Channel { return b.channel }

func (b baseStrategy) Insert(ctx context.Context, st RecordStore, rec *store.Record) (*store.Record, error) {
	return st.Insert(ctx, rec)
}

func (b baseStrategy) Prepare(context.Context) error { return nil }

func (b baseStrategy) Purge(context.Context, RecordStore) error { return nil }

func (b baseStrategy) Fetch(ctx context.Context, st RecordStore, userTag string) ([]*store.Record, error) {
	return st.FetchAll(ctx, b.channel, userTag)
}

func (b baseStrategy) Complete(context.Context, RecordStore, *store.Record, transport.Result) error {
	return nil
}

func (b baseStrategy) BackoffKey(*store.Record) string { return string(b.channel) }

func (b baseStrategy) StopOnRetry() bool { return true }
