// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/metrics"
)

// GateConfig holds admission settings.
type GateConfig struct {
	// AuthDeadline bounds how long a fresh connection may take to present
	// its credential.
	AuthDeadline time.Duration

	// SendRate and SendBurst configure the per-connection inbound limiter.
	SendRate  float64
	SendBurst int

	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
}

// Gate admits freshly upgraded websocket connections into the hub.
//
// The credential travels in the payload of the connection's first envelope
// ({"event":"auth","data":{"token":...}}), never in a transport header. A
// connection that fails any handshake step is closed without joining a room,
// so there is no partially admitted state.
type Gate struct {
	hub      *Hub
	verifier Verifier
	handler  Handler
	cfg      GateConfig
}

// NewGate creates an admission gate in front of the hub.
func NewGate(h *Hub, verifier Verifier, handler Handler, cfg GateConfig) *Gate {
	if cfg.AuthDeadline <= 0 {
		cfg.AuthDeadline = 10 * time.Second
	}
	return &Gate{
		hub:      h,
		verifier: verifier,
		handler:  handler,
		cfg:      cfg,
	}
}

// Admit runs the first-frame handshake, registers the client, and starts its
// pumps. On any failure the connection is closed with a policy violation
// frame and an error is returned; the hub never sees the connection.
func (g *Gate) Admit(ctx context.Context, conn *websocket.Conn) (*Client, error) {
	if err := conn.SetReadDeadline(time.Now().Add(g.cfg.AuthDeadline)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	var envelope inboundEvent
	if err := conn.ReadJSON(&envelope); err != nil {
		g.reject(conn, "handshake frame not received")
		return nil, fmt.Errorf("read handshake frame: %w", err)
	}

	if envelope.Name != EventAuth {
		g.reject(conn, "expected auth event")
		return nil, fmt.Errorf("handshake: expected %q event, got %q", EventAuth, envelope.Name)
	}

	var payload authPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.Token == "" {
		g.reject(conn, "missing credential")
		return nil, fmt.Errorf("handshake: missing credential")
	}

	identity, err := g.verifier.VerifyToken(payload.Token)
	if err != nil {
		g.reject(conn, "invalid credential")
		return nil, fmt.Errorf("handshake: %w", err)
	}

	var limiter *rate.Limiter
	if g.cfg.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.SendRate), g.cfg.SendBurst)
	}

	client := NewClient(g.hub, conn, identity, g.handler, g.cfg.SendBuffer, limiter)
	g.hub.Register <- client
	client.Start(ctx)
	client.Send(Event{Name: EventAuthOK, Data: authAck{UserID: identity.ID, Role: identity.Role}})

	logging.Info().
		Str("room", identity.ID).
		Str("role", string(identity.Role)).
		Msg("socket handshake complete")
	return client, nil
}

// reject closes an unauthenticated connection with a policy violation frame.
func (g *Gate) reject(conn *websocket.Conn, reason string) {
	metrics.SocketAuthFailures.Inc()
	logging.Warn().Str("reason", reason).Msg("socket handshake rejected")

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}
