// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianClinical/services/cdss"
	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
)

func newCDSSToolForTest(t *testing.T) Tool {
	t.Helper()

	store, err := rules.NewStore()
	if err != nil {
		t.Fatalf("loading embedded rules: %v", err)
	}
	guards, err := guardrails.NewEvaluator()
	if err != nil {
		t.Fatalf("loading embedded guardrails: %v", err)
	}
	return NewCDSSTool(cdss.NewEngine(store, guards))
}

func TestCDSSTool_ApprovedIntervention(t *testing.T) {
	tool := newCDSSToolForTest(t)

	result, err := tool.Execute(context.Background(), map[string]any{
		"domain":      "orthopedic",
		"action_kind": "range_of_motion",
		"description": "Begin active-assisted knee flexion",
		"attributes": map[string]any{
			"post_op_day": 30,
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Output, "Approved") {
		t.Errorf("expected an approved verdict in output:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "EARLY_MOBILIZATION_SUPPORTED") {
		t.Errorf("expected the supporting rule in output:\n%s", result.Output)
	}
}

func TestCDSSTool_GuardrailBlock(t *testing.T) {
	tool := newCDSSToolForTest(t)

	result, err := tool.Execute(context.Background(), map[string]any{
		"domain":      "orthopedic",
		"action_kind": "full_weight_bearing",
		"attributes": map[string]any{
			"post_op_day": 5,
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success carrying a verdict, got %+v", result)
	}
	if !strings.Contains(result.Output, "Blocked") {
		t.Errorf("expected a blocked verdict in output:\n%s", result.Output)
	}
	if !strings.Contains(result.Output, "EARLY_WEIGHT_BEARING") {
		t.Errorf("expected the guardrail in output:\n%s", result.Output)
	}
}

func TestCDSSTool_MissingRequiredField(t *testing.T) {
	tool := newCDSSToolForTest(t)

	_, err := tool.Execute(context.Background(), map[string]any{
		"domain": "orthopedic",
	})
	if err == nil {
		t.Fatal("expected an error for a missing action_kind")
	}
	if !strings.Contains(err.Error(), "invalid evaluation request") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCDSSTool_ThroughExecutor(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newCDSSToolForTest(t))
	executor := NewExecutor(registry, nil)

	// A tool-level error must surface as a failed result, not a panic
	// or a dropped call.
	result := executor.Execute(context.Background(), &Invocation{
		ToolName: "cdss_evaluate",
		Parameters: map[string]any{
			"domain": "orthopedic",
		},
	})
	if result.Success {
		t.Fatal("expected failure for missing action_kind")
	}
	if result.ErrorCode != CodeValidationError {
		t.Errorf("expected %s, got %s", CodeValidationError, result.ErrorCode)
	}
}
