// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleVendor.Valid())
	assert.True(t, RoleClient.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleCounterpart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoleClient, RoleVendor.Counterpart())
	assert.Equal(t, RoleVendor, RoleClient.Counterpart())
}

func TestMessageParties(t *testing.T) {
	t.Parallel()

	msg := Message{VendorID: "v1", ClientID: "c1", Sender: RoleVendor}

	assert.Equal(t, "v1:c1", msg.ConversationKey())
	assert.Equal(t, "v1", msg.AuthorID())
	assert.Equal(t, "c1", msg.RecipientID())
	assert.Equal(t, "v1", msg.Party(RoleVendor))
	assert.Equal(t, "c1", msg.Party(RoleClient))

	msg.Sender = RoleClient
	assert.Equal(t, "c1", msg.AuthorID())
	assert.Equal(t, "v1", msg.RecipientID())
}

func TestSendRequestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		text     string
		wantBody string
	}{
		{"message only", "hello", "", "hello"},
		{"text only", "", "hi there", "hi there"},
		{"both prefers message", "from message", "from text", "from message"},
		{"neither stays empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := SendRequest{Body: tt.body, Text: tt.text}
			req.Normalize()
			assert.Equal(t, tt.wantBody, req.Body)
			assert.Empty(t, req.Text, "legacy field must be cleared")
		})
	}
}
