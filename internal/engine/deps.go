// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/pushrelay/internal/connectivity"
	"github.com/tomtom215/pushrelay/internal/events"
	"github.com/tomtom215/pushrelay/internal/identity"
	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/store"
	"github.com/tomtom215/pushrelay/internal/transport"
)

// RecordStore is the persistence the engine needs. *store.Store
// implements it.
type RecordStore interface {
	Insert(ctx context.Context, rec *store.Record) (*store.Record, error)
	FetchAll(ctx context.Context, channel models.Channel, userTag string) ([]*store.Record, error)
	Delete(ctx context.Context, rec *store.Record) (bool, error)
	IncrementAttempts(ctx context.Context, rec *store.Record, lastErr string) (int, error)
	PurgeStale(ctx context.Context, channel models.Channel, before time.Time) (int, error)
	Count(ctx context.Context, channel models.Channel) (int, error)

	ConfirmedToken(ctx context.Context) (*models.TokenPayload, error)
	SetConfirmedToken(ctx context.Context, tok *models.TokenPayload) error

	RetryCount(ctx context.Context, channel models.Channel) (int, error)
	SetRetryCount(ctx context.Context, channel models.Channel, n int) error

	Clear(ctx context.Context) error
}

// PermissionChecker reports whether the user allows notifications.
type PermissionChecker interface {
	NotificationsAllowed() bool
}

// Permission is a settable PermissionChecker.
type Permission struct {
	allowed atomic.Bool
}

// NewPermission creates a permission in the given state.
func NewPermission(allowed bool) *Permission {
	p := &Permission{}
	p.allowed.Store(allowed)
	return p
}

// NotificationsAllowed implements PermissionChecker.
func (p *Permission) NotificationsAllowed() bool {
	return p.allowed.Load()
}

// Set updates the permission.
func (p *Permission) Set(allowed bool) {
	p.allowed.Store(allowed)
}

// Deps are the collaborators of the service.
type Deps struct {
	Store      RecordStore
	Sender     transport.Sender
	Identity   identity.Resolver
	Gate       connectivity.Gate
	Events     events.Emitter
	Permission PermissionChecker
}
