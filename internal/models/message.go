// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package models defines the chat domain types shared across chatd:
// messages, conversation summaries, party snapshots, and the inbound
// send-message payload with its legacy field normalization.
package models

import (
	"time"
)

// Role identifies which side of the marketplace an identity belongs to.
type Role string

const (
	RoleVendor Role = "vendor"
	RoleClient Role = "client"
)

// Valid reports whether the role is one of the two marketplace sides.
func (r Role) Valid() bool {
	return r == RoleVendor || r == RoleClient
}

// Counterpart returns the opposite marketplace side.
func (r Role) Counterpart() Role {
	if r == RoleVendor {
		return RoleClient
	}
	return RoleVendor
}

// Identity is an authenticated marketplace participant.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Message is a single persisted chat message between a vendor and a client.
type Message struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendorId"`
	ClientID  string    `json:"clientId"`
	Sender    Role      `json:"sender"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// ConversationKey returns the canonical key for the vendor/client pair.
// Vendor always comes first so both parties resolve the same conversation.
func (m *Message) ConversationKey() string {
	return m.VendorID + ":" + m.ClientID
}

// AuthorID returns the participant ID of whoever sent the message.
func (m *Message) AuthorID() string {
	if m.Sender == RoleVendor {
		return m.VendorID
	}
	return m.ClientID
}

// RecipientID returns the participant ID of the party the message targets.
func (m *Message) RecipientID() string {
	if m.Sender == RoleVendor {
		return m.ClientID
	}
	return m.VendorID
}

// Party returns the participant ID holding the given role in this message.
func (m *Message) Party(role Role) string {
	if role == RoleVendor {
		return m.VendorID
	}
	return m.ClientID
}

// SendRequest is the inbound send-message payload. Older web clients send
// the body under "text" rather than "message"; Normalize folds the two.
type SendRequest struct {
	VendorID string `json:"vendorId" validate:"omitempty,max=64"`
	ClientID string `json:"clientId" validate:"omitempty,max=64"`
	Sender   Role   `json:"sender" validate:"required,oneof=vendor client"`
	Body     string `json:"message" validate:"omitempty,max=4096"`
	Text     string `json:"text,omitempty" validate:"omitempty,max=4096"`

	// Timestamp is optional; the server fills receipt time when absent.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Normalize folds the legacy "text" field into Body. When both fields are
// present, "message" wins. Text is cleared so downstream code never sees it.
func (r *SendRequest) Normalize() {
	if r.Body == "" && r.Text != "" {
		r.Body = r.Text
	}
	r.Text = ""
}

// PartySnapshot is the public directory record for a participant, embedded
// in cross-conversation chat events so list surfaces can render without a
// directory lookup.
type PartySnapshot struct {
	ID     string `json:"id"`
	Role   Role   `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"profileImage,omitempty"`
}

// ConversationSummary is one row of a participant's conversation list.
type ConversationSummary struct {
	CounterpartyID string    `json:"counterpartyId"`
	Name           string    `json:"name,omitempty"`
	Avatar         string    `json:"profileImage,omitempty"`
	LastMessage    string    `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnreadCount    int       `json:"unreadCount"`
}

// ChatEvent is the cross-conversation broadcast emitted after every
// successful send. Snapshots may be ID-only when the directory has no
// record for a party.
type ChatEvent struct {
	ConversationKey string        `json:"conversationKey"`
	Message         Message       `json:"message"`
	Vendor          PartySnapshot `json:"vendor"`
	Client          PartySnapshot `json:"client"`
}
