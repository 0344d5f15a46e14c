// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package explain

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestTracerAppendOrder(t *testing.T) {
	tracer := NewTracer()

	tracer.Record(KindToolCall, "first", map[string]any{"tool": "visual_calculator"})
	tracer.Record(KindVerdict, "second", map[string]any{"status": "approved"})
	tracer.Record(KindNote, "third", nil)

	entries := tracer.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	for i, entry := range entries {
		if entry.Seq != i+1 {
			t.Errorf("entry[%d].Seq = %d, want %d", i, entry.Seq, i+1)
		}
		if entry.ID == "" {
			t.Errorf("entry[%d] has empty ID", i)
		}
		if entry.RecordedAt.IsZero() {
			t.Errorf("entry[%d] has zero timestamp", i)
		}
	}

	if entries[0].Summary != "first" || entries[2].Summary != "third" {
		t.Error("entries not in append order")
	}
}

func TestTracerRecordNeverFails(t *testing.T) {
	tracer := NewTracer()

	// A channel cannot be JSON-serialized. The record must still land,
	// with the bad value replaced rather than the entry dropped.
	entry := tracer.Record(KindToolCall, "exotic payload", map[string]any{
		"ok":  "value",
		"bad": make(chan int),
	})

	if entry.Payload["ok"] != "value" {
		t.Errorf("serializable value mangled: %v", entry.Payload["ok"])
	}
	placeholder, isString := entry.Payload["bad"].(string)
	if !isString || !strings.Contains(placeholder, "unserializable") {
		t.Errorf("unserializable value not replaced: %v", entry.Payload["bad"])
	}

	// The whole trail must serialize cleanly afterwards.
	if _, err := json.Marshal(tracer); err != nil {
		t.Fatalf("trail no longer serializable: %v", err)
	}
}

func TestTracerConcurrentRecord(t *testing.T) {
	tracer := NewTracer()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tracer.Record(KindToolCall, "parallel", nil)
			}
		}()
	}
	wg.Wait()

	entries := tracer.Entries()
	if len(entries) != writers*perWriter {
		t.Fatalf("got %d entries, want %d", len(entries), writers*perWriter)
	}

	// Sequence numbers are dense and strictly increasing.
	for i, entry := range entries {
		if entry.Seq != i+1 {
			t.Fatalf("entry[%d].Seq = %d, want %d", i, entry.Seq, i+1)
		}
	}
}

func TestTracerEntriesReturnsCopy(t *testing.T) {
	tracer := NewTracer()
	tracer.Record(KindNote, "original", nil)

	snapshot := tracer.Entries()
	snapshot[0].Summary = "mutated"

	if tracer.Entries()[0].Summary != "original" {
		t.Error("caller mutation leaked into the trail")
	}
}
