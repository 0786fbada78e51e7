// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package services

import (
	"context"
	"time"
)

// Collector matches *store.Store's RunGC method.
type Collector interface {
	RunGC(ctx context.Context, interval time.Duration) error
}

// StoreGCService runs periodic Badger value log garbage collection under
// supervision.
type StoreGCService struct {
	store    Collector
	interval time.Duration
}

// NewStoreGCService wraps the store's GC loop for supervision. A zero
// interval uses the store's default.
func NewStoreGCService(store Collector, interval time.Duration) *StoreGCService {
	return &StoreGCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	return s.store.RunGC(ctx, s.interval)
}

// String implements fmt.Stringer for suture's event logs.
func (s *StoreGCService) String() string {
	return "store-gc"
}
