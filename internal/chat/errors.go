// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package chat

import "fmt"

// ValidationError rejects a send request before anything is persisted.
// It is surfaced to the originating connection only.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store write failure. The request was valid; the
// client keeps its draft and may retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to persist message: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
