// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package hub maintains the registry of authenticated socket connections and
// routes events to them.
//
// Every admitted connection joins exactly one room named after its identity
// ID. A participant may hold several concurrent connections (several devices);
// room emission reaches all of them. Unauthenticated connections never reach
// the registry, so no event can be routed to a socket that has not completed
// the handshake.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/metrics"
	"github.com/venuelink/chatd/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown operation.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub maintains the set of active clients, grouped into rooms by identity,
// and routes events to them.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client

	// done is closed when the event loop stops, so pump goroutines that
	// outlive it do not block handing their connection back.
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// RunWithContext runs the hub event loop until the context is canceled.
// Designed for suture supervision; on cancelation all clients are closed
// and ctx.Err() is returned so the supervisor does not restart a healthy
// shutdown.
//
// DETERMINISM: Uses priority-based selection so behavior is predictable when
// multiple channels are ready:
//   - Priority 1: context cancellation (shutdown)
//   - Priority 2: client lifecycle events (Register/Unregister)
//   - Priority 3: broadcast events
//
// Lifecycle-before-broadcast ordering guarantees the registry is consistent
// before any event is routed.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown check (non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		// Priority 3: broadcast events or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case event := <-h.broadcast:
			h.broadcastToClients(event)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	room := client.Room()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	totalClients, totalRooms := len(h.clients), len(h.rooms)
	h.mu.Unlock()

	metrics.SocketConnections.Set(float64(totalClients))
	metrics.SocketRooms.Set(float64(totalRooms))
	logging.Info().
		Str("room", room).
		Int("total_clients", totalClients).
		Msg("socket client joined")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closeSend()

	room := client.Room()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	totalClients, totalRooms := len(h.clients), len(h.rooms)
	h.mu.Unlock()

	metrics.SocketConnections.Set(float64(totalClients))
	metrics.SocketRooms.Set(float64(totalRooms))
	logging.Info().
		Str("room", room).
		Int("total_clients", totalClients).
		Msg("socket client left")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.done) })

	clientCount := h.ClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}

	// ctx.Err() is expected during graceful shutdown, so it is not logged
	// as an error field.
	logging.Info().
		Str("component", "hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("socket hub stopped")
}

// closeAllClients closes all connected clients during shutdown.
// DETERMINISM: Closes clients in ID order for consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.clients)
	for _, client := range clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)

	metrics.SocketConnections.Set(0)
	metrics.SocketRooms.Set(0)
}

// sortedClients returns the clients of a set ordered by their IDs.
// DETERMINISM: Map iteration order is random; sorting by the monotonically
// assigned client ID gives every emission a reproducible delivery order.
func sortedClients(set map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// EmitToRoom delivers an event to every connection in the identity's room.
// Emitting to a room with no connections is a no-op. Events are dropped
// (never blocked on) when a connection's send queue is full; the write pump
// and ping deadlines clean up dead connections.
func (h *Hub) EmitToRoom(room string, event Event) {
	h.mu.RLock()
	clients := sortedClients(h.rooms[room])
	h.mu.RUnlock()

	for _, client := range clients {
		client.Send(event)
	}
}

// Broadcast queues an event for delivery to all connected clients.
func (h *Hub) Broadcast(name string, data interface{}) {
	event := Event{Name: name, Data: data}

	select {
	case h.broadcast <- event:
	default:
		metrics.SocketEventsDropped.WithLabelValues(name).Inc()
		logging.Warn().Str("event", name).Msg("broadcast channel full, dropping event")
	}
}

// broadcastToClients sends an event to all connected clients in ID order.
func (h *Hub) broadcastToClients(event Event) {
	h.mu.RLock()
	clients := sortedClients(h.clients)
	h.mu.RUnlock()

	for _, client := range clients {
		client.Send(event)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one connection.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSize returns the number of connections in the identity's room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the IDs of all occupied rooms, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Handler processes inbound chat events from admitted connections.
// Implementations must be safe for concurrent use; each connection calls
// the handler serially from its own read pump.
type Handler interface {
	// HandleSend processes one send-message payload from the origin client.
	HandleSend(ctx context.Context, origin *Client, payload []byte)
}

// Verifier turns a handshake credential into an authenticated identity.
type Verifier interface {
	VerifyToken(token string) (models.Identity, error)
}
