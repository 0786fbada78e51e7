// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package reconcile implements the client-side message list state machine:
// optimistic echo of locally sent messages, reconciliation against
// server-confirmed records, and the active-conversation summary list that
// keeps independent UI surfaces in sync.
//
// Matching an optimistic entry to its confirmed record is heuristic: same
// body within a small timestamp window. Two identical bodies sent inside
// the window would misreconcile; the server does not echo a client
// correlation id.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/models"
)

// Phase is the lifecycle state of the open conversation view.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// DefaultReconcileWindow bounds how far apart an optimistic entry's local
// timestamp and the confirmed record's server timestamp may be.
const DefaultReconcileWindow = 2 * time.Second

// Entry is one rendered message: a Message plus its reconciliation tag.
type Entry struct {
	models.Message

	// Optimistic marks an entry the server has not confirmed yet.
	Optimistic bool

	// TempID identifies an optimistic entry until confirmation.
	TempID string
}

// Backend is the server surface the view fetches from.
type Backend interface {
	// History returns the full conversation with the counterparty in
	// chronological order.
	History(ctx context.Context, counterpartyID string) ([]models.Message, error)

	// MarkRead flips the counterparty's unread messages to read.
	MarkRead(ctx context.Context, counterpartyID string) error
}

// Config holds view tunables.
type Config struct {
	// ReconcileWindow overrides DefaultReconcileWindow when positive.
	ReconcileWindow time.Duration
}

// View holds the message list for the open conversation and the summary
// list across all conversations. All methods are safe for concurrent use;
// socket events and UI actions may arrive on different goroutines.
type View struct {
	mu      sync.Mutex
	self    models.Identity
	backend Backend
	window  time.Duration

	phase   Phase
	active  string
	epoch   uint64
	entries []Entry
	draft   string

	summaries map[string]models.ConversationSummary

	// now is swapped in tests.
	now func() time.Time
}

// NewView creates an idle view for the authenticated identity.
func NewView(self models.Identity, backend Backend, cfg Config) *View {
	window := cfg.ReconcileWindow
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &View{
		self:      self,
		backend:   backend,
		window:    window,
		phase:     PhaseIdle,
		summaries: make(map[string]models.ConversationSummary),
		now:       time.Now,
	}
}

// Phase returns the view's lifecycle state.
func (v *View) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Active returns the counterparty ID of the open conversation, or "".
func (v *View) Active() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Entries returns a copy of the rendered message list.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Entry(nil), v.entries...)
}

// Open switches to the conversation with counterpartyID: enters loading,
// fetches history, then enters ready with the fetched list. A fetch that
// completes after the active conversation changed again is discarded, so a
// slow stale response never overwrites newer state. Mark-read fires in the
// background; its failure is logged, never surfaced.
func (v *View) Open(ctx context.Context, counterpartyID string) error {
	v.mu.Lock()
	v.active = counterpartyID
	v.phase = PhaseLoading
	v.entries = nil
	v.epoch++
	epoch := v.epoch
	v.mu.Unlock()

	history, err := v.backend.History(ctx, counterpartyID)
	if err != nil {
		v.mu.Lock()
		if v.epoch == epoch {
			v.phase = PhaseIdle
			v.active = ""
		}
		v.mu.Unlock()
		return fmt.Errorf("fetch history for %s: %w", counterpartyID, err)
	}

	v.mu.Lock()
	if v.epoch != epoch {
		// A newer Open superseded this fetch.
		v.mu.Unlock()
		return nil
	}
	v.entries = make([]Entry, 0, len(history))
	for _, msg := range history {
		v.entries = append(v.entries, Entry{Message: msg})
	}
	v.phase = PhaseReady
	v.suppressUnreadLocked(counterpartyID)
	v.mu.Unlock()

	go func() {
		if err := v.backend.MarkRead(ctx, counterpartyID); err != nil {
			logging.Warn().Err(err).
				Str("counterparty", counterpartyID).
				Msg("mark-read failed on conversation open")
		}
	}()
	return nil
}

// Close returns the view to idle and drops the open conversation's list.
// Summaries survive; they back the conversation list widgets.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.phase = PhaseIdle
	v.active = ""
	v.entries = nil
	v.epoch++
}

// SetDraft replaces the composer text.
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft = text
}

// Draft returns the composer text.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Submit appends an optimistic entry for the current draft, clears the
// composer, and returns the send request to put on the wire. It reports
// false when there is nothing to send or no conversation is open.
func (v *View) Submit() (models.SendRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.phase != PhaseReady || v.draft == "" {
		return models.SendRequest{}, false
	}

	sentAt := v.now()
	vendorID, clientID := v.conversationPairLocked()
	entry := Entry{
		Message: models.Message{
			VendorID:  vendorID,
			ClientID:  clientID,
			Sender:    v.self.Role,
			Body:      v.draft,
			Timestamp: sentAt,
		},
		Optimistic: true,
		TempID:     fmt.Sprintf("tmp-%d", sentAt.UnixNano()),
	}
	v.insertLocked(entry)

	req := models.SendRequest{
		VendorID:  vendorID,
		ClientID:  clientID,
		Sender:    v.self.Role,
		Body:      v.draft,
		Timestamp: &sentAt,
	}
	v.draft = ""
	return req, true
}

// ApplyConfirmed merges a server-confirmed message (from the direct ack or
// the room broadcast) into the open conversation. A matching optimistic
// entry is replaced in place; otherwise the message is appended in
// timestamp order unless its server-assigned id is already present.
func (v *View) ApplyConfirmed(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.phase != PhaseReady || !v.inActiveConversationLocked(&msg) {
		return
	}

	for i := range v.entries {
		if v.entries[i].ID == msg.ID && msg.ID != "" {
			return
		}
	}

	if i, ok := v.matchOptimisticLocked(&msg); ok {
		v.entries[i] = Entry{Message: msg}
		v.restoreOrderLocked(i)
		return
	}

	v.insertLocked(Entry{Message: msg})
}

// OnSendError drops the newest optimistic entry and puts its body back in
// the composer so the user's text is not lost.
func (v *View) OnSendError(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	logging.Warn().Str("reason", reason).Msg("send rejected by server")

	for i := len(v.entries) - 1; i >= 0; i-- {
		if v.entries[i].Optimistic {
			if v.draft == "" {
				v.draft = v.entries[i].Body
			}
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

// ApplySummary merges a conversation-updated event into the summary list.
// The open conversation's unread increment is suppressed; it is being read
// right now and the mark-read call is already on its way.
func (v *View) ApplySummary(summary models.ConversationSummary) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if summary.CounterpartyID == v.active {
		summary.UnreadCount = 0
	}
	v.summaries[summary.CounterpartyID] = summary
}

// Summaries returns the conversation list, newest activity first.
func (v *View) Summaries() []models.ConversationSummary {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]models.ConversationSummary, 0, len(v.summaries))
	for _, s := range v.summaries {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// UnreadTotal returns the unread count across all conversations, for the
// navbar badge.
func (v *View) UnreadTotal() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := 0
	for _, s := range v.summaries {
		total += s.UnreadCount
	}
	return total
}

// suppressUnreadLocked zeroes the unread count of a conversation being
// opened; the mark-read call is already in flight.
func (v *View) suppressUnreadLocked(counterpartyID string) {
	if s, ok := v.summaries[counterpartyID]; ok {
		s.UnreadCount = 0
		v.summaries[counterpartyID] = s
	}
}

func (v *View) conversationPairLocked() (vendorID, clientID string) {
	if v.self.Role == models.RoleVendor {
		return v.self.ID, v.active
	}
	return v.active, v.self.ID
}

func (v *View) inActiveConversationLocked(msg *models.Message) bool {
	if v.active == "" {
		return false
	}
	vendorID, clientID := v.conversationPairLocked()
	return msg.VendorID == vendorID && msg.ClientID == clientID
}

// matchOptimisticLocked finds an optimistic entry with the same body whose
// local timestamp is within the reconcile window of the confirmed record.
func (v *View) matchOptimisticLocked(msg *models.Message) (int, bool) {
	for i := range v.entries {
		e := &v.entries[i]
		if !e.Optimistic || e.Body != msg.Body || e.Sender != msg.Sender {
			continue
		}
		delta := msg.Timestamp.Sub(e.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= v.window {
			return i, true
		}
	}
	return 0, false
}

// insertLocked places an entry keeping non-decreasing timestamps; equal
// timestamps keep arrival order.
func (v *View) insertLocked(entry Entry) {
	i := sort.Search(len(v.entries), func(i int) bool {
		return v.entries[i].Timestamp.After(entry.Timestamp)
	})
	v.entries = append(v.entries, Entry{})
	copy(v.entries[i+1:], v.entries[i:])
	v.entries[i] = entry
}

// restoreOrderLocked re-seats the entry at index i if its confirmed
// timestamp no longer sorts where the optimistic one did.
func (v *View) restoreOrderLocked(i int) {
	entry := v.entries[i]
	misplaced := (i > 0 && entry.Timestamp.Before(v.entries[i-1].Timestamp)) ||
		(i < len(v.entries)-1 && v.entries[i+1].Timestamp.Before(entry.Timestamp))
	if !misplaced {
		return
	}
	v.entries = append(v.entries[:i], v.entries[i+1:]...)
	v.insertLocked(entry)
}
