// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package chat implements the message delivery pipeline: validate and
// normalize inbound send requests, persist them, and fan the persisted
// record out to both participant rooms together with derived conversation
// summaries and a global chat event.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/venuelink/chatd/internal/hub"
	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/metrics"
	"github.com/venuelink/chatd/internal/models"
	"github.com/venuelink/chatd/internal/validation"
)

// Store is the persistence surface the engine needs.
type Store interface {
	Append(ctx context.Context, msg *models.Message) error
	History(ctx context.Context, vendorID, clientID string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, vendorID, clientID string, author models.Role, cutoff time.Time) (int, error)
	UnreadCount(ctx context.Context, vendorID, clientID string, author models.Role) (int, error)
	Conversations(ctx context.Context, viewer models.Identity) ([]models.ConversationSummary, error)
	PartyOrFallback(ctx context.Context, id string) (models.PartySnapshot, error)
}

// Emitter is the fan-out surface, satisfied by *hub.Hub.
type Emitter interface {
	EmitToRoom(room string, event hub.Event)
	Broadcast(name string, data interface{})
}

// Config holds engine tunables.
type Config struct {
	// HistoryLimit caps how many messages History returns per conversation.
	HistoryLimit int
}

// Engine is the delivery pipeline. It holds no per-request state; every
// send runs validate, persist, fan out to completion independently.
type Engine struct {
	store        Store
	emitter      Emitter
	historyLimit int

	// now is swapped in tests.
	now func() time.Time
}

// NewEngine creates a delivery engine.
func NewEngine(store Store, emitter Emitter, cfg Config) *Engine {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 500
	}
	return &Engine{
		store:        store,
		emitter:      emitter,
		historyLimit: limit,
		now:          time.Now,
	}
}

// Send validates, persists, and fans out one message on behalf of the
// authenticated sender. Validation and persistence failures return typed
// errors and leave no partial state; fan-out failures after persistence are
// logged and never reported back to the sender.
func (e *Engine) Send(ctx context.Context, sender models.Identity, req models.SendRequest) (*models.Message, error) {
	req.Normalize()

	// A request may omit its own side's party ID; the authenticated
	// identity fills it in only when the roles agree.
	if req.VendorID == "" && sender.Role == models.RoleVendor {
		req.VendorID = sender.ID
	}
	if req.ClientID == "" && sender.Role == models.RoleClient {
		req.ClientID = sender.ID
	}

	if err := validateSend(&req); err != nil {
		metrics.RecordMessageError("validation")
		return nil, err
	}

	timestamp := e.now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	msg := &models.Message{
		VendorID:  req.VendorID,
		ClientID:  req.ClientID,
		Sender:    req.Sender,
		Body:      req.Body,
		Timestamp: timestamp,
		Read:      false,
	}

	if err := e.store.Append(ctx, msg); err != nil {
		metrics.RecordMessageError("persistence")
		logging.Ctx(ctx).Error().Err(err).
			Str("vendor_id", msg.VendorID).
			Str("client_id", msg.ClientID).
			Msg("failed to persist message")
		return nil, &PersistenceError{Err: err}
	}

	metrics.MessagesSent.Inc()
	e.fanOut(ctx, msg)
	return msg, nil
}

// validateSend checks the normalized request. Party IDs must be key-safe
// because they become store key segments.
func validateSend(req *models.SendRequest) error {
	if verr := validation.ValidateStruct(req); verr != nil {
		return &ValidationError{Reason: verr.Error()}
	}
	if req.VendorID == "" {
		return validationErrorf("vendorId is required")
	}
	if req.ClientID == "" {
		return validationErrorf("clientId is required")
	}
	if strings.ContainsRune(req.VendorID, ':') || strings.ContainsRune(req.ClientID, ':') {
		return validationErrorf("party ids must not contain ':'")
	}
	if req.Body == "" {
		return validationErrorf("message body is required")
	}
	return nil
}

// fanOut emits the persisted record to both participant rooms, a summary
// update per party, and the global chat event. Each branch is best-effort;
// a failure in one never blocks the others or rolls back the message.
func (e *Engine) fanOut(ctx context.Context, msg *models.Message) {
	start := time.Now()
	defer func() {
		metrics.RecordFanout(time.Since(start))
	}()

	e.emitter.EmitToRoom(msg.VendorID, hub.Event{Name: hub.EventMessage, Data: *msg})
	if msg.ClientID != msg.VendorID {
		e.emitter.EmitToRoom(msg.ClientID, hub.Event{Name: hub.EventMessage, Data: *msg})
	}

	for _, role := range []models.Role{models.RoleVendor, models.RoleClient} {
		summary, err := e.summaryFor(ctx, msg, role)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("party", msg.Party(role)).
				Msg("failed to derive conversation summary")
			continue
		}
		e.emitter.EmitToRoom(msg.Party(role), hub.Event{Name: hub.EventConversationUpdated, Data: summary})
	}

	vendorSnap, err := e.store.PartyOrFallback(ctx, msg.VendorID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("party", msg.VendorID).Msg("vendor snapshot lookup failed")
	}
	clientSnap, err := e.store.PartyOrFallback(ctx, msg.ClientID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("party", msg.ClientID).Msg("client snapshot lookup failed")
	}
	e.emitter.Broadcast(hub.EventChatEvent, models.ChatEvent{
		ConversationKey: msg.ConversationKey(),
		Message:         *msg,
		Vendor:          vendorSnap,
		Client:          clientSnap,
	})
}

// summaryFor derives the conversation-updated payload for one party.
// The author's own unread count is always 0; the recipient's is recomputed
// from the store so it reflects every unread message, not just this one.
func (e *Engine) summaryFor(ctx context.Context, msg *models.Message, viewer models.Role) (models.ConversationSummary, error) {
	counterpartyID := msg.Party(viewer.Counterpart())

	unread := 0
	if msg.Sender != viewer {
		n, err := e.store.UnreadCount(ctx, msg.VendorID, msg.ClientID, msg.Sender)
		if err != nil {
			return models.ConversationSummary{}, err
		}
		unread = n
	}

	snap, err := e.store.PartyOrFallback(ctx, counterpartyID)
	if err != nil {
		snap = models.PartySnapshot{ID: counterpartyID}
	}

	return models.ConversationSummary{
		CounterpartyID: counterpartyID,
		Name:           snap.Name,
		Avatar:         snap.Avatar,
		LastMessage:    msg.Body,
		LastMessageAt:  msg.Timestamp,
		UnreadCount:    unread,
	}, nil
}

// History returns the viewer's conversation with the counterparty in
// chronological order, capped at the configured limit.
func (e *Engine) History(ctx context.Context, viewer models.Identity, counterpartyID string) ([]models.Message, error) {
	vendorID, clientID := conversationPair(viewer, counterpartyID)
	return e.store.History(ctx, vendorID, clientID, e.historyLimit)
}

// MarkRead flips read on the counterparty's unread messages in the viewer's
// conversation, scoped to messages no newer than the call's receipt time so
// a concurrently arriving message is never swallowed. Idempotent.
func (e *Engine) MarkRead(ctx context.Context, viewer models.Identity, counterpartyID string) (int, error) {
	vendorID, clientID := conversationPair(viewer, counterpartyID)
	n, err := e.store.MarkRead(ctx, vendorID, clientID, viewer.Role.Counterpart(), e.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.MessagesMarkedRead.Add(float64(n))
	}
	return n, nil
}

// Conversations returns the viewer's active conversation summaries,
// newest first.
func (e *Engine) Conversations(ctx context.Context, viewer models.Identity) ([]models.ConversationSummary, error) {
	return e.store.Conversations(ctx, viewer)
}

// conversationPair maps a viewer and counterparty onto the canonical
// vendor/client key order.
func conversationPair(viewer models.Identity, counterpartyID string) (vendorID, clientID string) {
	if viewer.Role == models.RoleVendor {
		return viewer.ID, counterpartyID
	}
	return counterpartyID, viewer.ID
}
