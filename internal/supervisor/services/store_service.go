// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the store.Compactor lifecycle.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// StoreCompactorService runs the record store compactor under supervision.
//
//	compactor := store.NewCompactor(st)
//	tree.AddDataService(services.NewStoreCompactorService(compactor))
type StoreCompactorService struct {
	compactor StartStopper
	name      string
}

// NewStoreCompactorService wraps compactor.
func NewStoreCompactorService(compactor StartStopper) *StoreCompactorService {
	return &StoreCompactorService{
		compactor: compactor,
		name:      "store-compactor",
	}
}

// Serve starts the compactor, waits for cancellation and stops it. Stop
// blocks until an in-progress compaction finishes.
func (s *StoreCompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("store compactor start failed: %w", err)
	}

	<-ctx.Done()
	s.compactor.Stop()
	return ctx.Err()
}

func (s *StoreCompactorService) String() string {
	return s.name
}
