// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package chat

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/venuelink/chatd/internal/hub"
	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/metrics"
	"github.com/venuelink/chatd/internal/models"
)

// Error codes carried on message-error events.
const (
	codeValidation  = "VALIDATION_ERROR"
	codePersistence = "PERSISTENCE_ERROR"
)

// SocketHandler bridges inbound send-message frames to the engine. It
// implements hub.Handler. Errors go back to the originating connection
// only; the counterparty never sees them.
type SocketHandler struct {
	engine *Engine
}

// NewSocketHandler creates the hub-facing send handler.
func NewSocketHandler(engine *Engine) *SocketHandler {
	return &SocketHandler{engine: engine}
}

// HandleSend processes one send-message payload from the origin client.
func (h *SocketHandler) HandleSend(ctx context.Context, origin *hub.Client, payload []byte) {
	var req models.SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		metrics.RecordMessageError("malformed")
		origin.Send(hub.Event{Name: hub.EventMessageError, Data: hub.ErrorPayload{
			Error: "malformed send-message payload",
			Code:  codeValidation,
		}})
		return
	}

	msg, err := h.engine.Send(ctx, origin.Identity(), req)
	if err != nil {
		code := codePersistence
		var verr *ValidationError
		if errors.As(err, &verr) {
			code = codeValidation
		}
		logging.Ctx(ctx).Warn().Err(err).
			Str("room", origin.Room()).
			Str("code", code).
			Msg("send-message rejected")
		origin.Send(hub.Event{Name: hub.EventMessageError, Data: hub.ErrorPayload{
			Error: err.Error(),
			Code:  code,
		}})
		return
	}

	origin.Send(hub.Event{Name: hub.EventMessageSent, Data: *msg})
}
