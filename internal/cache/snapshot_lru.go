// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package cache provides an in-process LRU for party directory snapshots.
// Every fan-out embeds both parties' snapshots, so directory reads are the
// hottest store access; the cache keeps them off Badger.
package cache

import (
	"sync"
	"time"

	"github.com/venuelink/chatd/internal/models"
)

type snapshotEntry struct {
	key       string
	snapshot  models.PartySnapshot
	prev      *snapshotEntry
	next      *snapshotEntry
	expiresAt time.Time
}

// SnapshotLRU is a thread-safe LRU of party snapshots with TTL. Lookups,
// inserts, and eviction are O(1): a doubly-linked list holds recency order
// and a map holds the nodes. Expired entries are dropped lazily on access.
type SnapshotLRU struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	items map[string]*snapshotEntry

	// Sentinels. head.next is most recently used, tail.prev is least.
	head *snapshotEntry
	tail *snapshotEntry

	hits   int64
	misses int64
}

// NewSnapshotLRU creates a snapshot cache. Zero or negative arguments fall
// back to 4096 entries and a 1 minute TTL.
func NewSnapshotLRU(capacity int, ttl time.Duration) *SnapshotLRU {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	c := &SnapshotLRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*snapshotEntry, capacity),
		head:     &snapshotEntry{},
		tail:     &snapshotEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached snapshot for a party ID. Found entries move to the
// front of the recency list.
func (c *SnapshotLRU) Get(id string) (models.PartySnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[id]
	if !ok {
		c.misses++
		return models.PartySnapshot{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.unlink(entry)
		delete(c.items, id)
		c.misses++
		return models.PartySnapshot{}, false
	}

	c.moveToFront(entry)
	c.hits++
	return entry.snapshot, true
}

// Put adds or refreshes a snapshot, evicting the least recently used entry
// at capacity.
func (c *SnapshotLRU) Put(id string, snap models.PartySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[id]; ok {
		entry.snapshot = snap
		entry.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(entry)
		return
	}

	if len(c.items) >= c.capacity {
		oldest := c.tail.prev
		if oldest != c.head {
			c.unlink(oldest)
			delete(c.items, oldest.key)
		}
	}

	entry := &snapshotEntry{
		key:       id,
		snapshot:  snap,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[id] = entry
	c.pushFront(entry)
}

// Invalidate drops a party's cached snapshot. Returns true if present.
func (c *SnapshotLRU) Invalidate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[id]
	if !ok {
		return false
	}
	c.unlink(entry)
	delete(c.items, id)
	return true
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *SnapshotLRU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns hit and miss counts.
func (c *SnapshotLRU) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *SnapshotLRU) pushFront(entry *snapshotEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *SnapshotLRU) moveToFront(entry *snapshotEntry) {
	c.unlink(entry)
	c.pushFront(entry)
}

func (c *SnapshotLRU) unlink(entry *snapshotEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	entry.prev = nil
	entry.next = nil
}
