// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/venuelink/chatd/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func decodeEnvelope(t *testing.T, body io.Reader) APIResponse {
	t.Helper()

	var resp APIResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response envelope: %v", err)
	}
	return resp
}

// =============================================================================
// Success Responses
// =============================================================================

func TestResponseWriter_Success(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()

	NewResponseWriter(w, req).Success(map[string]string{"hello": "world"})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	resp := decodeEnvelope(t, w.Body)
	if !resp.Success {
		t.Error("Expected success=true")
	}
	if resp.Error != nil {
		t.Errorf("Expected no error, got %+v", resp.Error)
	}
	if resp.Meta == nil {
		t.Fatal("Expected meta to be present")
	}
	if resp.Meta.Timestamp.IsZero() {
		t.Error("Expected meta timestamp to be set")
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %T", resp.Data)
	}
	if data["hello"] != "world" {
		t.Errorf("Expected data to round-trip, got %v", data)
	}
}

func TestResponseWriter_NoContent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/api/chat/u1/read", nil)
	w := httptest.NewRecorder()

	NewResponseWriter(w, req).NoContent()

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
}

// =============================================================================
// Error Responses
// =============================================================================

func TestResponseWriter_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		write      func(rw *ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "bad request",
			write:      func(rw *ResponseWriter) { rw.BadRequest("nope") },
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "unauthorized",
			write:      func(rw *ResponseWriter) { rw.Unauthorized("who are you") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrCodeUnauthorized,
		},
		{
			name:       "not found",
			write:      func(rw *ResponseWriter) { rw.NotFound("missing") },
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNotFound,
		},
		{
			name:       "internal",
			write:      func(rw *ResponseWriter) { rw.InternalError("boom") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternalError,
		},
		{
			name:       "store",
			write:      func(rw *ResponseWriter) { rw.StoreError(errors.New("badger exploded")) },
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeStoreError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			w := httptest.NewRecorder()
			tt.write(NewResponseWriter(w, req))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			resp := decodeEnvelope(t, w.Body)
			if resp.Success {
				t.Error("Expected success=false")
			}
			if resp.Error == nil {
				t.Fatal("Expected error in envelope")
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q", tt.wantCode, resp.Error.Code)
			}
			if resp.Error.Message == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestResponseWriter_StoreError_HidesInternals(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/u1", nil)
	w := httptest.NewRecorder()

	NewResponseWriter(w, req).StoreError(errors.New("badger: txn conflict at key msg:v:c:1"))

	resp := decodeEnvelope(t, w.Body)
	if resp.Error == nil {
		t.Fatal("Expected error in envelope")
	}
	if strings.Contains(resp.Error.Message, "badger") {
		t.Errorf("Store detail leaked into response: %q", resp.Error.Message)
	}
}

func TestResponseWriter_ValidationError_CarriesDetails(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/api/directory/self", nil)
	w := httptest.NewRecorder()

	details := []map[string]string{{"field": "profileImage", "message": "must be a valid URL"}}
	NewResponseWriter(w, req).ValidationError("invalid directory update", details)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	resp := decodeEnvelope(t, w.Body)
	if resp.Error == nil {
		t.Fatal("Expected error in envelope")
	}
	if resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("Expected code %q, got %q", ErrCodeValidationFailed, resp.Error.Code)
	}
	if resp.Error.Details == nil {
		t.Error("Expected validation details to be present")
	}
}

func TestResponseWriter_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	ctx := logging.ContextWithRequestID(context.Background(), "req-abc-123")
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	NewResponseWriter(w, req).Unauthorized("nope")

	resp := decodeEnvelope(t, w.Body)
	if resp.Error == nil || resp.Error.RequestID != "req-abc-123" {
		t.Errorf("Expected request ID in error, got %+v", resp.Error)
	}
	if resp.Meta == nil || resp.Meta.RequestID != "req-abc-123" {
		t.Errorf("Expected request ID in meta, got %+v", resp.Meta)
	}
}
