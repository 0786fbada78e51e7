// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/venuelink/chatd/internal/models"
)

func snap(id, name string) models.PartySnapshot {
	return models.PartySnapshot{ID: id, Role: models.RoleVendor, Name: name}
}

func TestSnapshotLRU_PutGet(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(4, time.Minute)
	c.Put("vendor-1", snap("vendor-1", "Grand Ballroom"))

	got, ok := c.Get("vendor-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Name != "Grand Ballroom" {
		t.Errorf("unexpected snapshot: %+v", got)
	}

	if _, ok := c.Get("vendor-2"); ok {
		t.Error("expected miss for unknown id")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestSnapshotLRU_UpdateRefreshes(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(4, time.Minute)
	c.Put("vendor-1", snap("vendor-1", "Old Name"))
	c.Put("vendor-1", snap("vendor-1", "New Name"))

	got, ok := c.Get("vendor-1")
	if !ok || got.Name != "New Name" {
		t.Errorf("expected refreshed snapshot, got %+v ok=%v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected single entry, got %d", c.Len())
	}
}

func TestSnapshotLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(3, time.Minute)
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("vendor-%d", i)
		c.Put(id, snap(id, id))
	}

	// Touch vendor-1 so vendor-2 becomes the eviction candidate.
	if _, ok := c.Get("vendor-1"); !ok {
		t.Fatal("expected vendor-1 present")
	}

	c.Put("vendor-4", snap("vendor-4", "vendor-4"))

	if _, ok := c.Get("vendor-2"); ok {
		t.Error("expected vendor-2 to be evicted")
	}
	if _, ok := c.Get("vendor-1"); !ok {
		t.Error("expected vendor-1 to survive eviction")
	}
	if c.Len() != 3 {
		t.Errorf("expected len 3, got %d", c.Len())
	}
}

func TestSnapshotLRU_ExpiresEntries(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(4, 10*time.Millisecond)
	c.Put("client-1", snap("client-1", "Dana"))

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("client-1"); ok {
		t.Error("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("expected lazy expiry to remove the entry, got len %d", c.Len())
	}
}

func TestSnapshotLRU_Invalidate(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(4, time.Minute)
	c.Put("client-1", snap("client-1", "Dana"))

	if !c.Invalidate("client-1") {
		t.Error("expected invalidation of present entry")
	}
	if c.Invalidate("client-1") {
		t.Error("expected second invalidation to report absence")
	}
	if _, ok := c.Get("client-1"); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestSnapshotLRU_Defaults(t *testing.T) {
	t.Parallel()

	c := NewSnapshotLRU(0, 0)
	if c.capacity != 4096 {
		t.Errorf("expected default capacity 4096, got %d", c.capacity)
	}
	if c.ttl != time.Minute {
		t.Errorf("expected default ttl 1m, got %v", c.ttl)
	}
}

func BenchmarkSnapshotLRU_Get(b *testing.B) {
	c := NewSnapshotLRU(1024, time.Minute)
	for i := 0; i < 1024; i++ {
		id := fmt.Sprintf("vendor-%d", i)
		c.Put(id, snap(id, id))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("vendor-%d", i%1024))
	}
}
