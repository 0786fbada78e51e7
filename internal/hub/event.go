// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package hub

import (
	"github.com/goccy/go-json"

	"github.com/venuelink/chatd/internal/models"
)

// Event names for socket communication. Every frame on the wire is an
// envelope of the form {"event": <name>, "data": <payload>}.
const (
	// Client to server
	EventAuth        = "auth"
	EventSendMessage = "send-message"
	EventPing        = "ping"

	// Server to client
	EventAuthOK              = "auth-ok"
	EventMessage             = "message"
	EventMessageSent         = "message-sent"
	EventMessageError        = "message-error"
	EventConversationUpdated = "conversation-updated"
	EventChatEvent           = "chat-event"
	EventNotification        = "notification"
	EventPong                = "pong"
)

// Event is an outbound socket envelope.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// inboundEvent is the envelope as read off the wire. Data stays raw so the
// handler for each event name can decode its own payload.
type inboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// authPayload is the payload of the first-frame auth event.
type authPayload struct {
	Token string `json:"token"`
}

// authAck is the payload of the auth-ok event.
type authAck struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

// ErrorPayload is the payload of message-error events. The error field name
// is part of the wire contract with deployed web clients.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
