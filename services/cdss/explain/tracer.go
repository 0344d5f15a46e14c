// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package explain records an append-only audit trail of decisions made
// during a conversation. Every verdict and every tool execution gets an
// entry, so a clinician can reconstruct why the system said what it said.
package explain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a trace entry.
type Kind string

const (
	// KindVerdict records a decision engine verdict.
	KindVerdict Kind = "verdict"

	// KindToolCall records one tool execution.
	KindToolCall Kind = "tool_call"

	// KindModelTurn records one model round trip.
	KindModelTurn Kind = "model_turn"

	// KindNote records free-form pipeline events (reloads, routing).
	KindNote Kind = "note"
)

// Entry is one immutable record in the audit trail.
type Entry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	// Seq is the entry's position in the trail, starting at 1.
	Seq int `json:"seq"`

	// Kind classifies the entry.
	Kind Kind `json:"kind"`

	// Summary is a one-line human-readable description.
	Summary string `json:"summary"`

	// Payload carries the structured detail. Values are guaranteed
	// JSON-serializable by the time they are stored.
	Payload map[string]any `json:"payload,omitempty"`

	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recorded_at"`
}

// Tracer is an append-only audit trail for one conversation.
//
// # Thread Safety
//
// Safe for concurrent use. Tool executions may run in parallel and record
// from multiple goroutines; the sequence number reflects append order.
type Tracer struct {
	// ConversationID ties the trail to one conversation.
	ConversationID string

	mu      sync.Mutex
	entries []Entry
}

// NewTracer creates an empty trail for a new conversation.
func NewTracer() *Tracer {
	return &Tracer{ConversationID: uuid.NewString()}
}

// Record appends an entry to the trail.
//
// Description:
//
//	Recording never fails. Payload values that cannot be represented as
//	JSON are replaced with a placeholder rather than rejected, so an
//	exotic value in a tool result can never lose the audit record.
//
// Inputs:
//
//	kind - Entry classification.
//	summary - One-line description.
//	payload - Structured detail; may be nil.
//
// Outputs:
//
//	Entry - A copy of the stored entry.
func (t *Tracer) Record(kind Kind, summary string, payload map[string]any) Entry {
	sanitized := sanitizePayload(payload)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		ID:         uuid.NewString(),
		Seq:        len(t.entries) + 1,
		Kind:       kind,
		Summary:    summary,
		Payload:    sanitized,
		RecordedAt: time.Now().UTC(),
	}
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of the trail in append order.
func (t *Tracer) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Tracer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// MarshalJSON serializes the trail as a single document.
func (t *Tracer) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return json.Marshal(struct {
		ConversationID string  `json:"conversation_id"`
		Entries        []Entry `json:"entries"`
	}{normalizeID(t.ConversationID), t.entries})
}

// normalizeID keeps an empty id out of serialized trails.
func normalizeID(id string) string {
	if id == "" {
		return uuid.Nil.String()
	}
	return id
}

// sanitizePayload copies the payload, coercing any value that cannot be
// JSON-serialized into a placeholder string.
func sanitizePayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}

	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if _, err := json.Marshal(value); err != nil {
			out[key] = fmt.Sprintf("<unserializable %T>", value)
			continue
		}
		out[key] = value
	}
	return out
}
