// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/venuelink/chatd/internal/auth"
	"github.com/venuelink/chatd/internal/chat"
	"github.com/venuelink/chatd/internal/hub"
	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/models"
	"github.com/venuelink/chatd/internal/store"
	"github.com/venuelink/chatd/internal/validation"
)

// Handlers holds the HTTP endpoint implementations.
type Handlers struct {
	engine    *chat.Engine
	store     *store.Store
	hub       *hub.Hub
	gate      *hub.Gate
	upgrader  websocket.Upgrader
	startedAt time.Time

	// baseCtx outlives individual requests; admitted socket clients keep
	// running after the upgrade handler returns.
	baseCtx context.Context
}

// NewHandlers creates the endpoint set. baseCtx bounds the lifetime of
// admitted socket connections and should be the process context.
func NewHandlers(baseCtx context.Context, engine *chat.Engine, s *store.Store, h *hub.Hub, gate *hub.Gate, allowedOrigins []string) *Handlers {
	return &Handlers{
		engine:    engine,
		store:     s,
		hub:       h,
		gate:      gate,
		upgrader:  newUpgrader(allowedOrigins),
		startedAt: time.Now(),
		baseCtx:   baseCtx,
	}
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header.
			return origin == "" || allowed[origin]
		},
	}
}

// History returns the caller's conversation with the counterparty in
// chronological order.
//
// GET /api/chat/{userID}
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	counterpartyID := chi.URLParam(r, "userID")
	if counterpartyID == "" {
		rw.BadRequest("userID is required")
		return
	}

	messages, err := h.engine.History(r.Context(), identity, counterpartyID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	rw.Success(messages)
}

// MarkRead flips the counterparty's unread messages to read, scoped to
// messages no newer than the request's receipt time. Idempotent.
//
// PUT /api/chat/{userID}/read
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	counterpartyID := chi.URLParam(r, "userID")
	if counterpartyID == "" {
		rw.BadRequest("userID is required")
		return
	}

	updated, err := h.engine.MarkRead(r.Context(), identity, counterpartyID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(map[string]int{"updated": updated})
}

// Conversations returns the caller's active conversation summaries,
// newest activity first.
//
// GET /api/conversations
func (h *Handlers) Conversations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	summaries, err := h.engine.Conversations(r.Context(), identity)
	if err != nil {
		rw.StoreError(err)
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	rw.Success(summaries)
}

// directoryUpdateRequest is the self-service directory payload.
type directoryUpdateRequest struct {
	Name   string `json:"name" validate:"omitempty,max=120"`
	Avatar string `json:"profileImage" validate:"omitempty,url,max=512"`
}

// UpdateDirectorySelf refreshes the caller's directory snapshot, which is
// embedded in conversation summaries and chat-event broadcasts.
//
// PUT /api/directory/self
func (h *Handlers) UpdateDirectorySelf(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req directoryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("malformed request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("invalid directory update", verr.ToAPIError())
		return
	}

	snapshot := models.PartySnapshot{
		ID:     identity.ID,
		Role:   identity.Role,
		Name:   req.Name,
		Avatar: req.Avatar,
	}
	if err := h.store.UpsertParty(r.Context(), snapshot); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(snapshot)
}

// Health reports liveness plus hub occupancy.
//
// GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"connections":    h.hub.ClientCount(),
		"rooms":          h.hub.RoomCount(),
	})
}

// WebSocket upgrades the connection and hands it to the admission gate.
// The bearer credential arrives in the first frame, not in a header.
//
// GET /ws
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if _, err := h.gate.Admit(h.baseCtx, conn); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("socket admission failed")
	}
}
