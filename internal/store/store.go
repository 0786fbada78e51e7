// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package store persists chat messages, conversation indexes, and the party
// directory in BadgerDB.
//
// Keyspace layout:
//
//	msg:<vendorID>:<clientID>:<timestamp %020d nanos>:<messageID>  -> Message JSON
//	conv:<partyID>:<counterpartyID>                                -> conversation index JSON
//	user:<partyID>                                                 -> PartySnapshot JSON
//
// Message keys embed a fixed-width timestamp, so a prefix scan over one
// conversation yields messages in chronological order without sorting.
// The conversation index is written alongside every appended message and
// carries last-message data for conversation list queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/venuelink/chatd/internal/cache"
	"github.com/venuelink/chatd/internal/config"
	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	msgKeyPrefix  = "msg:"
	convKeyPrefix = "conv:"
	userKeyPrefix = "user:"
)

// conflictRetries bounds optimistic transaction retries on concurrent appends
// to the same conversation.
const conflictRetries = 5

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Snapshot cache sizing. Directory records are tiny and change rarely, so a
// short TTL keeps cross-process updates visible without hitting Badger on
// every fan-out.
const (
	snapshotCacheSize = 4096
	snapshotCacheTTL  = time.Minute
)

// Store is a BadgerDB-backed message and directory store.
type Store struct {
	db        *badger.DB
	snapshots *cache.SnapshotLRU
}

// Open creates (or opens) the store at the configured path.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Message store opened")

	return &Store{
		db:        db,
		snapshots: cache.NewSnapshotLRU(snapshotCacheSize, snapshotCacheTTL),
	}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// convIndexEntry is the value stored under conv: keys. Each party owns one
// entry per conversation, keyed by its own ID first.
type convIndexEntry struct {
	VendorID      string    `json:"vendorId"`
	ClientID      string    `json:"clientId"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

func messageKey(m *models.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%s",
		msgKeyPrefix, m.VendorID, m.ClientID, m.Timestamp.UnixNano(), m.ID))
}

func conversationPrefix(vendorID, clientID string) []byte {
	return []byte(msgKeyPrefix + vendorID + ":" + clientID + ":")
}

func convIndexKey(ownerID, counterpartyID string) []byte {
	return []byte(convKeyPrefix + ownerID + ":" + counterpartyID)
}

// Append persists a message and updates both parties' conversation indexes.
// The message ID is assigned when empty. Conflicting transactions from
// concurrent appends to the same conversation are retried.
func (s *Store) Append(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	index := convIndexEntry{
		VendorID:      msg.VendorID,
		ClientID:      msg.ClientID,
		LastMessage:   msg.Body,
		LastMessageAt: msg.Timestamp,
	}
	indexData, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Set(messageKey(msg), data); err != nil {
				return fmt.Errorf("set message: %w", err)
			}
			if err := txn.Set(convIndexKey(msg.VendorID, msg.ClientID), indexData); err != nil {
				return fmt.Errorf("set vendor index: %w", err)
			}
			if err := txn.Set(convIndexKey(msg.ClientID, msg.VendorID), indexData); err != nil {
				return fmt.Errorf("set client index: %w", err)
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= conflictRetries {
			return err
		}
	}
}

// History returns the conversation's messages in chronological order.
// When limit is positive and the conversation is longer, only the most
// recent limit messages are returned (still oldest first).
func (s *Store) History(ctx context.Context, vendorID, clientID string, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = conversationPrefix(vendorID, clientID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var msg models.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// MarkRead flags messages authored by the given role as read, up to and
// including the cutoff time. Already-read messages are untouched, making the
// operation idempotent. Returns the number of messages flipped.
func (s *Store) MarkRead(ctx context.Context, vendorID, clientID string, author models.Role, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	flipped := 0
	for attempt := 0; ; attempt++ {
		flipped = 0
		err := s.db.Update(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = conversationPrefix(vendorID, clientID)
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()

				var msg models.Message
				err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &msg)
				})
				if err != nil {
					return fmt.Errorf("unmarshal message: %w", err)
				}

				if msg.Read || msg.Sender != author || msg.Timestamp.After(cutoff) {
					continue
				}

				msg.Read = true
				data, err := json.Marshal(&msg)
				if err != nil {
					return fmt.Errorf("marshal message: %w", err)
				}
				if err := txn.Set(item.KeyCopy(nil), data); err != nil {
					return fmt.Errorf("set message: %w", err)
				}
				flipped++
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= conflictRetries {
			return flipped, err
		}
	}
}

// UnreadCount counts unread messages authored by the given role in one
// conversation.
func (s *Store) UnreadCount(ctx context.Context, vendorID, clientID string, author models.Role) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = conversationPrefix(vendorID, clientID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var msg models.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			if !msg.Read && msg.Sender == author {
				count++
			}
		}
		return nil
	})
	return count, err
}

// Conversations returns the viewer's conversation list, newest first.
// Each summary carries the counterparty's directory snapshot when one exists
// and the count of unread messages the counterparty has sent.
func (s *Store) Conversations(ctx context.Context, viewer models.Identity) ([]models.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []convIndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(convKeyPrefix + viewer.ID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry convIndexEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("unmarshal index: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(entries))
	for i := range entries {
		entry := &entries[i]

		counterpartyID := entry.VendorID
		if viewer.Role == models.RoleVendor {
			counterpartyID = entry.ClientID
		}

		unread, err := s.UnreadCount(ctx, entry.VendorID, entry.ClientID, viewer.Role.Counterpart())
		if err != nil {
			return nil, err
		}

		summary := models.ConversationSummary{
			CounterpartyID: counterpartyID,
			LastMessage:    entry.LastMessage,
			LastMessageAt:  entry.LastMessageAt,
			UnreadCount:    unread,
		}

		// Directory lookup is best-effort; a missing record leaves the
		// summary ID-only.
		if snap, err := s.GetParty(ctx, counterpartyID); err == nil {
			summary.Name = snap.Name
			summary.Avatar = snap.Avatar
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}
