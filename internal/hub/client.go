// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/metrics"
	"github.com/venuelink/chatd/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, well above the message body cap
)

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// DETERMINISM: Assigned from an atomic counter so clients sort consistently
// for emission ordering.
var clientIDCounter atomic.Uint64

// Client is one admitted socket connection, the middleman between the
// websocket and the hub.
type Client struct {
	id       uint64
	identity models.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan Event
	limiter  *rate.Limiter
	handler  Handler

	// sendMu serializes queue writes with closeSend so an emission racing a
	// disconnect can never hit a closed channel.
	sendMu sync.Mutex
	closed bool
}

// NewClient creates a Client for an authenticated connection.
func NewClient(h *Hub, conn *websocket.Conn, identity models.Identity, handler Handler, sendBuffer int, limiter *rate.Limiter) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		id:       clientIDCounter.Add(1),
		identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan Event, sendBuffer),
		limiter:  limiter,
		handler:  handler,
	}
}

// ID returns the client's unique identifier for deterministic ordering.
func (c *Client) ID() uint64 {
	return c.id
}

// Identity returns the authenticated identity behind this connection.
func (c *Client) Identity() models.Identity {
	return c.identity
}

// Room returns the room this connection belongs to, which is always the
// identity's own ID.
func (c *Client) Room() string {
	return c.identity.ID
}

// Send queues an event for delivery on this connection without blocking.
// Events are dropped when the send queue is full or the connection has
// already been unregistered.
func (c *Client) Send(event Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		metrics.SocketEventsDropped.WithLabelValues(event.Name).Inc()
		return
	}

	select {
	case c.send <- event:
		metrics.SocketEventsSent.WithLabelValues(event.Name).Inc()
	default:
		metrics.SocketEventsDropped.WithLabelValues(event.Name).Inc()
		logging.Warn().
			Str("event", event.Name).
			Str("room", c.Room()).
			Msg("send queue full, dropping event")
	}
}

// closeSend closes the outbound queue exactly once. The write pump drains
// what is left and sends the websocket close frame.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// detach hands the connection back to the hub for unregistration, or gives
// up when the hub event loop has already stopped.
func (c *Client) detach() {
	select {
	case c.hub.Unregister <- c:
	case <-c.hub.done:
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

// readPump pumps inbound events from the websocket connection.
// Each connection's events are processed serially, so a participant's sends
// keep their order.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.detach()
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event inboundEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("room", c.Room()).Msg("unexpected websocket close error")
			}
			break
		}

		c.handleInbound(ctx, &event)
	}
}

// handleInbound dispatches one inbound envelope.
func (c *Client) handleInbound(ctx context.Context, event *inboundEvent) {
	switch event.Name {
	case EventPing:
		c.Send(Event{Name: EventPong})

	case EventSendMessage:
		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RecordMessageError("rate_limited")
			c.Send(Event{Name: EventMessageError, Data: ErrorPayload{
				Error: "Too many messages, slow down",
				Code:  "RATE_LIMITED",
			}})
			return
		}
		c.handler.HandleSend(ctx, c, event.Data)

	default:
		logging.Debug().
			Str("event", event.Name).
			Str("room", c.Room()).
			Msg("ignoring unknown socket event")
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				logging.Error().Err(err).Str("room", c.Room()).Msg("failed to write event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
