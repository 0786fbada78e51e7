// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/venuelink/chatd/internal/logging"
)

// defaultGCInterval is how often value log garbage collection runs when no
// interval is configured.
const defaultGCInterval = 10 * time.Minute

// RunGC runs Badger value log garbage collection on a fixed interval until
// the context is canceled. Each tick reclaims log files until Badger reports
// nothing left to rewrite. In-memory stores reject collection requests, which
// is treated as a no-op.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultGCInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *Store) collect() {
	reclaimed := 0
	for {
		err := s.db.RunValueLogGC(0.5)
		if err == nil {
			reclaimed++
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			logging.Warn().Err(err).Msg("Value log GC failed")
		}
		break
	}
	if reclaimed > 0 {
		logging.Debug().Int("files", reclaimed).Msg("Value log GC reclaimed files")
	}
}
