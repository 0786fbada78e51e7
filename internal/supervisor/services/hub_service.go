// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package services

import (
	"context"
)

// EventLoop matches *hub.Hub's RunWithContext method. The interface keeps
// this package free of a hub import.
type EventLoop interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the hub event loop under supervision. RunWithContext
// already follows the suture.Service contract, so this wrapper only adds
// the service name.
type HubService struct {
	hub EventLoop
}

// NewHubService wraps the hub for supervision.
func NewHubService(hub EventLoop) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's event logs.
func (s *HubService) String() string {
	return "chat-hub"
}
