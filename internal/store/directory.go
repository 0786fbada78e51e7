// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/venuelink/chatd/internal/models"
)

// UpsertParty stores or replaces a participant's directory snapshot.
// The snapshot is denormalized into broadcast chat events, so the main
// application pushes updates here whenever a profile changes.
func (s *Store) UpsertParty(ctx context.Context, snap models.PartySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.ID == "" {
		return fmt.Errorf("party snapshot requires an id")
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userKeyPrefix+snap.ID), data)
	})
	if err != nil {
		return err
	}

	s.snapshots.Put(snap.ID, snap)
	return nil
}

// GetParty returns a participant's directory snapshot. Fan-out reads the
// directory on every message, so lookups go through the snapshot cache.
// Returns ErrNotFound when the directory has no record for the ID.
func (s *Store) GetParty(ctx context.Context, id string) (models.PartySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.PartySnapshot{}, err
	}

	if snap, ok := s.snapshots.Get(id); ok {
		return snap, nil
	}

	var snap models.PartySnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return models.PartySnapshot{}, err
	}

	s.snapshots.Put(id, snap)
	return snap, nil
}

// PartyOrFallback returns the participant's snapshot, degrading to an
// ID-only snapshot when the directory has no record. Only unexpected store
// errors are returned.
func (s *Store) PartyOrFallback(ctx context.Context, id string) (models.PartySnapshot, error) {
	snap, err := s.GetParty(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.PartySnapshot{ID: id}, nil
	}
	return snap, err
}
