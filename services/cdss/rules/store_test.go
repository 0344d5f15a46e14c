// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

// discardLogger silences store logging in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validRuleSource = `
version: "test-1"
domains:
  orthopedic:
    - id: FIRST
      when: {field: post_op_day, op: lt, value: 14}
      action: approve
      severity: info
      rationale: early phase support
    - id: SECOND
      when: {field: post_op_day, op: gte, value: 14}
      action: annotate
      severity: info
      rationale: later phase note
      annotation: progressing beyond the acute window
  low_vision:
    - id: MAG
      when: {field: visual_acuity_logmar, op: gte, value: 0.5}
      action: approve
      severity: info
      rationale: magnification supported
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(validRuleSource), "test")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if set.Version() != "test-1" {
		t.Errorf("Version() = %q, want %q", set.Version(), "test-1")
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}

	ortho := set.Lookup("orthopedic")
	if len(ortho) != 2 {
		t.Fatalf("Lookup(orthopedic) returned %d rules, want 2", len(ortho))
	}
	if ortho[0].ID != "FIRST" || ortho[1].ID != "SECOND" {
		t.Errorf("rule order not preserved: got %s, %s", ortho[0].ID, ortho[1].ID)
	}

	if got := set.Lookup("unknown_domain"); len(got) != 0 {
		t.Errorf("Lookup(unknown_domain) returned %d rules, want 0", len(got))
	}
}

func TestParseRejectsInvalidSources(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name:   "malformed yaml",
			source: "version: [unclosed",
		},
		{
			name:   "no domains",
			source: `version: "x"`,
		},
		{
			name: "missing rule id",
			source: `
domains:
  ortho:
    - when: {field: age, op: gt, value: 1}
      action: approve
      severity: info
      rationale: r
`,
		},
		{
			name: "duplicate rule id in domain",
			source: `
domains:
  ortho:
    - id: DUP
      when: {field: age, op: gt, value: 1}
      action: approve
      severity: info
      rationale: r
    - id: DUP
      when: {field: age, op: lt, value: 99}
      action: approve
      severity: info
      rationale: r
`,
		},
		{
			name: "invalid action enum",
			source: `
domains:
  ortho:
    - id: R
      when: {field: age, op: gt, value: 1}
      action: escalate
      severity: info
      rationale: r
`,
		},
		{
			name: "modify without modify block",
			source: `
domains:
  ortho:
    - id: R
      when: {field: age, op: gt, value: 1}
      action: modify
      severity: warning
      rationale: r
`,
		},
		{
			name: "annotate without annotation",
			source: `
domains:
  ortho:
    - id: R
      when: {field: age, op: gt, value: 1}
      action: annotate
      severity: info
      rationale: r
`,
		},
		{
			name: "invalid evidence level",
			source: `
domains:
  ortho:
    - id: R
      when: {field: age, op: gt, value: 1}
      action: approve
      severity: info
      rationale: r
      evidence_level: "9z"
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.source), "test")
			if err == nil {
				t.Fatal("expected load to fail, got nil error")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error type = %T, want *ConfigError", err)
			}
		})
	}
}

func TestStoreReloadKeepsOldSetOnFailure(t *testing.T) {
	store := &Store{logger: discardLogger()}
	set, err := Parse([]byte(validRuleSource), "test")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	store.current.Store(set)

	if err := store.Reload([]byte("domains: [broken"), "bad-source"); err == nil {
		t.Fatal("expected reload of malformed source to fail")
	}

	// The previous set must still be fully servable.
	if store.Current().Version() != "test-1" {
		t.Errorf("active version = %q, want test-1", store.Current().Version())
	}
	if len(store.Lookup("orthopedic")) != 2 {
		t.Error("previous rules no longer servable after failed reload")
	}
}

func TestStoreReloadSwapsAtomically(t *testing.T) {
	store := &Store{logger: discardLogger()}
	set, err := Parse([]byte(validRuleSource), "test")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	store.current.Store(set)

	// A snapshot taken before the reload keeps serving the old rules.
	before := store.Current()

	replacement := `
version: "test-2"
domains:
  orthopedic:
    - id: ONLY
      when: {field: post_op_day, op: exists}
      action: approve
      severity: info
      rationale: replacement rule
`
	if err := store.Reload([]byte(replacement), "test-2"); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	if store.Current().Version() != "test-2" {
		t.Errorf("active version = %q, want test-2", store.Current().Version())
	}
	if len(store.Lookup("orthopedic")) != 1 {
		t.Errorf("new set not active: got %d rules", len(store.Lookup("orthopedic")))
	}
	if before.Version() != "test-1" || len(before.Lookup("orthopedic")) != 2 {
		t.Error("pre-reload snapshot was mutated by the reload")
	}
}

func TestNewStoreLoadsEmbeddedDefaults(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	if store.Current().Len() == 0 {
		t.Fatal("embedded default rule set is empty")
	}

	ortho := store.Lookup("orthopedic")
	if len(ortho) == 0 {
		t.Fatal("embedded defaults missing orthopedic domain")
	}

	found := false
	for _, r := range ortho {
		if r.ID == "ROM_ADD_CRYOTHERAPY" {
			found = true
			if r.Action != ActionModify {
				t.Errorf("ROM_ADD_CRYOTHERAPY action = %q, want modify", r.Action)
			}
			if r.Modify == nil || len(r.Modify.AddComponents) == 0 {
				t.Error("ROM_ADD_CRYOTHERAPY has no components to add")
			}
		}
	}
	if !found {
		t.Error("embedded defaults missing ROM_ADD_CRYOTHERAPY")
	}
}
