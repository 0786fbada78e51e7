// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates a hub and runs its event loop until the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient creates a connection-less client for hub plumbing tests.
func createTestClient(hub *Hub, id string, role models.Role) *Client {
	return NewClient(hub, nil, models.Identity{ID: id, Role: role}, nil, 8, nil)
}

// registerClient registers a client and waits for registration to complete
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

// expectEvent receives one event from the client's queue within the timeout.
func expectEvent(t *testing.T, client *Client, name string) Event {
	t.Helper()

	select {
	case event := <-client.send:
		if event.Name != name {
			t.Errorf("Event name = %q, want %q", event.Name, name)
		}
		return event
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("Timeout waiting for %q event", name)
		return Event{}
	}
}

// expectNoEvent asserts the client's queue stays empty for a short window.
func expectNoEvent(t *testing.T, client *Client) {
	t.Helper()

	select {
	case event := <-client.send:
		t.Errorf("Unexpected event %q", event.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"rooms map", hub.rooms != nil, "rooms map not initialized"},
		{"broadcast channel", hub.broadcast != nil, "broadcast channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", hub.ClientCount() == 0, "clients map should be empty"},
		{"empty rooms", hub.RoomCount() == 0, "rooms map should be empty"},
	}

	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}
}

func TestHub_RegisterGroupsByRoom(t *testing.T) {
	hub := setupHub(t)

	// Two connections for the same vendor share one room.
	vendorTab1 := createTestClient(hub, "vendor-1", models.RoleVendor)
	vendorTab2 := createTestClient(hub, "vendor-1", models.RoleVendor)
	client := createTestClient(hub, "client-1", models.RoleClient)

	registerClient(hub, vendorTab1)
	registerClient(hub, vendorTab2)
	registerClient(hub, client)

	if hub.ClientCount() != 3 {
		t.Errorf("ClientCount = %d, want 3", hub.ClientCount())
	}
	if hub.RoomCount() != 2 {
		t.Errorf("RoomCount = %d, want 2", hub.RoomCount())
	}
	if hub.RoomSize("vendor-1") != 2 {
		t.Errorf("RoomSize(vendor-1) = %d, want 2", hub.RoomSize("vendor-1"))
	}
	if hub.RoomSize("client-1") != 1 {
		t.Errorf("RoomSize(client-1) = %d, want 1", hub.RoomSize("client-1"))
	}

	rooms := hub.Rooms()
	if len(rooms) != 2 || rooms[0] != "client-1" || rooms[1] != "vendor-1" {
		t.Errorf("Rooms = %v, want [client-1 vendor-1]", rooms)
	}
}

func TestHub_UnregisterRemovesEmptyRoom(t *testing.T) {
	hub := setupHub(t)

	tab1 := createTestClient(hub, "vendor-1", models.RoleVendor)
	tab2 := createTestClient(hub, "vendor-1", models.RoleVendor)
	registerClient(hub, tab1)
	registerClient(hub, tab2)

	hub.Unregister <- tab1
	time.Sleep(20 * time.Millisecond)

	if hub.RoomSize("vendor-1") != 1 {
		t.Errorf("RoomSize = %d, want 1 after first disconnect", hub.RoomSize("vendor-1"))
	}

	hub.Unregister <- tab2
	time.Sleep(20 * time.Millisecond)

	if hub.RoomCount() != 0 {
		t.Errorf("RoomCount = %d, want 0 after last disconnect", hub.RoomCount())
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestHub_UnregisterNonExistentClient(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub, "vendor-1", models.RoleVendor)

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestHub_EmitToRoom(t *testing.T) {
	hub := setupHub(t)

	vendorTab1 := createTestClient(hub, "vendor-1", models.RoleVendor)
	vendorTab2 := createTestClient(hub, "vendor-1", models.RoleVendor)
	bystander := createTestClient(hub, "client-1", models.RoleClient)

	registerClient(hub, vendorTab1)
	registerClient(hub, vendorTab2)
	registerClient(hub, bystander)

	hub.EmitToRoom("vendor-1", Event{Name: EventMessage, Data: "hello"})

	expectEvent(t, vendorTab1, EventMessage)
	expectEvent(t, vendorTab2, EventMessage)
	expectNoEvent(t, bystander)
}

func TestHub_EmitToRoom_NoConnections(t *testing.T) {
	hub := setupHub(t)

	// Emitting to an empty room must not panic or block.
	hub.EmitToRoom("vendor-offline", Event{Name: EventMessage})
}

func TestHub_Broadcast(t *testing.T) {
	hub := setupHub(t)

	vendor := createTestClient(hub, "vendor-1", models.RoleVendor)
	client := createTestClient(hub, "client-1", models.RoleClient)
	registerClient(hub, vendor)
	registerClient(hub, client)

	hub.Broadcast(EventChatEvent, map[string]string{"key": "value"})

	expectEvent(t, vendor, EventChatEvent)
	expectEvent(t, client, EventChatEvent)
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	oldLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	defer zerolog.SetGlobalLevel(oldLevel)

	hub := NewHub() // event loop not running, so the channel fills

	for i := 0; i < 256; i++ {
		hub.Broadcast(EventChatEvent, i)
	}
	hub.Broadcast(EventChatEvent, "overflow") // must not block
}

func TestHub_RunWithContext(t *testing.T) {
	t.Run("shuts down on context cancellation", func(t *testing.T) {
		oldLevel := zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(zerolog.Disabled)
		defer zerolog.SetGlobalLevel(oldLevel)

		hub := NewHub()
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- hub.RunWithContext(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("RunWithContext did not return after context cancellation")
		}
	})

	t.Run("shuts down on context deadline", func(t *testing.T) {
		oldLevel := zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(zerolog.Disabled)
		defer zerolog.SetGlobalLevel(oldLevel)

		hub := NewHub()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- hub.RunWithContext(ctx)
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected context.DeadlineExceeded, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("RunWithContext did not return after deadline")
		}
	})

	t.Run("closes all clients on shutdown", func(t *testing.T) {
		oldLevel := zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(zerolog.Disabled)
		defer zerolog.SetGlobalLevel(oldLevel)

		hub := NewHub()
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- hub.RunWithContext(ctx)
		}()

		ids := []string{"vendor-1", "vendor-2", "client-1"}
		for _, id := range ids {
			hub.Register <- createTestClient(hub, id, models.RoleVendor)
		}

		// Wait for registration with polling (more reliable in CI under load)
		var clientCount int
		for i := 0; i < 10; i++ {
			time.Sleep(20 * time.Millisecond)
			clientCount = hub.ClientCount()
			if clientCount == len(ids) {
				break
			}
		}

		if clientCount != len(ids) {
			t.Fatalf("expected %d clients, got %d", len(ids), clientCount)
		}

		cancel()

		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Fatal("RunWithContext did not return after context cancellation")
		}

		if hub.ClientCount() != 0 {
			t.Errorf("expected 0 clients after shutdown, got %d", hub.ClientCount())
		}
		if hub.RoomCount() != 0 {
			t.Errorf("expected 0 rooms after shutdown, got %d", hub.RoomCount())
		}
	})

	t.Run("routes events before shutdown", func(t *testing.T) {
		oldLevel := zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(zerolog.Disabled)
		defer zerolog.SetGlobalLevel(oldLevel)

		hub := NewHub()
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- hub.RunWithContext(ctx)
		}()

		client := createTestClient(hub, "vendor-1", models.RoleVendor)
		hub.Register <- client
		time.Sleep(20 * time.Millisecond)

		hub.Broadcast(EventNotification, map[string]string{"key": "value"})
		expectEvent(t, client, EventNotification)

		cancel()
		<-errCh
	})
}

func TestHub_CloseAllClients(t *testing.T) {
	oldLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	defer zerolog.SetGlobalLevel(oldLevel)

	hub := NewHub()

	for i := 0; i < 5; i++ {
		client := createTestClient(hub, "vendor-1", models.RoleVendor)
		hub.mu.Lock()
		hub.clients[client] = true
		hub.mu.Unlock()
	}

	if hub.ClientCount() != 5 {
		t.Fatalf("expected 5 clients, got %d", hub.ClientCount())
	}

	hub.closeAllClients()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after closeAllClients, got %d", hub.ClientCount())
	}
	if hub.RoomCount() != 0 {
		t.Errorf("expected 0 rooms after closeAllClients, got %d", hub.RoomCount())
	}
}

// Shutdown reason values appear in log output and may be parsed by log
// aggregators; changing them would break monitoring.
func TestShutdownReason_Constants(t *testing.T) {
	tests := []struct {
		constant ShutdownReason
		expected string
	}{
		{ShutdownReasonContextCanceled, "context_canceled"},
		{ShutdownReasonContextDeadline, "context_deadline"},
	}

	for _, tt := range tests {
		if string(tt.constant) != tt.expected {
			t.Errorf("ShutdownReason constant = %q, want %q", tt.constant, tt.expected)
		}
	}
}

func TestClientIDs_Monotonic(t *testing.T) {
	hub := NewHub()

	first := createTestClient(hub, "vendor-1", models.RoleVendor)
	second := createTestClient(hub, "vendor-1", models.RoleVendor)

	if second.ID() <= first.ID() {
		t.Errorf("client IDs not monotonic: first=%d second=%d", first.ID(), second.ID())
	}
}

func TestSortedClients(t *testing.T) {
	hub := NewHub()

	set := make(map[*Client]bool)
	var created []*Client
	for i := 0; i < 5; i++ {
		c := createTestClient(hub, "vendor-1", models.RoleVendor)
		set[c] = true
		created = append(created, c)
	}

	sorted := sortedClients(set)
	if len(sorted) != len(created) {
		t.Fatalf("sortedClients returned %d clients, want %d", len(sorted), len(created))
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].id >= sorted[i].id {
			t.Errorf("clients not in ID order at index %d: %d >= %d", i, sorted[i-1].id, sorted[i].id)
		}
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 10; i++ {
		client := createTestClient(hub, "vendor-1", models.RoleVendor)
		hub.Register <- client
		go func(c *Client) {
			for range c.send {
			}
		}(client)
	}
	time.Sleep(100 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(EventChatEvent, map[string]int{"i": i})
	}
}

func TestClient_SendAfterUnregister(t *testing.T) {
	hub := NewHub()
	client := createTestClient(hub, "vendor-1", models.RoleVendor)
	hub.register(client)
	hub.unregister(client)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Send after unregister panicked: %v", r)
		}
	}()
	client.Send(Event{Name: EventChatEvent})
}

func TestHub_EmitToRoomDuringDisconnect(t *testing.T) {
	hub := setupHub(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			client := createTestClient(hub, "vendor-1", models.RoleVendor)
			hub.Register <- client
			hub.Unregister <- client
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("EmitToRoom panicked during disconnect churn: %v", r)
			}
		}()
		for {
			select {
			case <-stop:
				return
			default:
				hub.EmitToRoom("vendor-1", Event{Name: EventChatEvent})
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestClient_DetachAfterHubStopped(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.RunWithContext(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, "client-1", models.RoleClient)
	registerClient(hub, client)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunWithContext error = %v, want context.Canceled", err)
	}

	detached := make(chan struct{})
	go func() {
		client.detach()
		close(detached)
	}()

	select {
	case <-detached:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("detach blocked after hub stopped")
	}
}
