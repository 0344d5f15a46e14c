// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cdss

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianClinical/services/cdss/explain"
	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	store, err := rules.NewStore()
	require.NoError(t, err, "embedded rules must load")

	guards, err := guardrails.NewEvaluator()
	require.NoError(t, err, "embedded guardrails must load")

	return NewEngine(store, guards, opts...)
}

func TestEvaluateApprovesCleanAction(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":                54,
				"post_op_day":        28,
				"diagnosis":          "rotator cuff repair",
				"radiographic_union": true,
			},
		},
		&ProposedAction{Kind: "range_of_motion"},
	)

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, verdict.Status)
	assert.False(t, verdict.ShortCircuit)
	assert.Empty(t, verdict.Violations)
	assert.Empty(t, verdict.SkippedRules)

	// Day 28 still matches the early-mobilization support rule.
	require.NotEmpty(t, verdict.FiredRules)
	assert.Equal(t, "EARLY_MOBILIZATION_SUPPORTED", verdict.FiredRules[0].RuleID)
}

func TestEvaluateGuardrailHardBlockShortCircuits(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":         61,
				"post_op_day": 8,
				"diagnosis":   "tibial plateau fracture",
			},
		},
		&ProposedAction{Kind: "full_weight_bearing"},
	)

	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, verdict.Status)
	assert.True(t, verdict.ShortCircuit)

	// No rule fires when a guardrail stops evaluation, and every rule
	// in the domain is accounted for as skipped.
	assert.Empty(t, verdict.FiredRules)
	require.NotEmpty(t, verdict.SkippedRules)
	for _, skipped := range verdict.SkippedRules {
		assert.Equal(t, skipReasonShortCircuit, skipped.Reason)
	}

	require.NotEmpty(t, verdict.Violations)
	assert.Equal(t, "EARLY_WEIGHT_BEARING", verdict.Violations[0].ReasonCode)
	assert.True(t, verdict.Violations[0].IsHardBlock())
}

func TestEvaluateModificationAddsComponent(t *testing.T) {
	engine := newTestEngine(t)

	proposal := &ProposedAction{Kind: "range_of_motion"}
	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":         47,
				"post_op_day": 10,
				"diagnosis":   "ACL reconstruction",
			},
		},
		proposal,
	)

	require.NoError(t, err)
	assert.Equal(t, StatusApprovedWithModification, verdict.Status)
	assert.Contains(t, verdict.Action.Components, "cryotherapy")

	// The caller's proposal is never mutated.
	assert.Empty(t, proposal.Components)

	ids := make([]string, 0, len(verdict.FiredRules))
	for _, fired := range verdict.FiredRules {
		ids = append(ids, fired.RuleID)
	}
	assert.Contains(t, ids, "ROM_ADD_CRYOTHERAPY")
}

func TestEvaluateBlockRuleOutranksModification(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":                55,
				"post_op_day":        20,
				"diagnosis":          "femur fracture",
				"radiographic_union": false,
			},
		},
		&ProposedAction{Kind: "progressive_resistance"},
	)

	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, verdict.Status)
	assert.False(t, verdict.ShortCircuit, "rule blocks are not guardrail short circuits")

	require.NotEmpty(t, verdict.FiredRules)
	assert.Equal(t, "RESISTANCE_BEFORE_UNION", verdict.FiredRules[0].RuleID)
	// A blocked verdict returns the untouched proposal.
	assert.Empty(t, verdict.Action.Components)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := newTestEngine(t)

	cc := &ClinicalContext{
		Domain: "low_vision",
		Attributes: map[string]any{
			"age":                  72,
			"diagnosis":            "macular degeneration",
			"visual_acuity_logmar": 0.7,
			"field_loss_pattern":   "central_scotoma",
		},
	}
	action := &ProposedAction{Kind: "reading_training"}

	first, err := engine.Evaluate(context.Background(), cc, action)
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), cc, action)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same inputs must yield identical verdicts")
}

func TestEvaluateFiredRulesFollowPriorityOrder(t *testing.T) {
	source := `
domains:
  ortho:
    - id: A
      when: {field: post_op_day, op: exists}
      action: annotate
      severity: info
      rationale: first
      annotation: note a
    - id: B
      when: {field: post_op_day, op: lt, value: 100}
      action: annotate
      severity: info
      rationale: second
      annotation: note b
    - id: C
      when: {field: post_op_day, op: gte, value: 0}
      action: approve
      severity: info
      rationale: third
`
	store := newStoreFromSource(t, source)
	guards, err := guardrails.NewEvaluator()
	require.NoError(t, err)
	engine := NewEngine(store, guards)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "ortho",
			Attributes: map[string]any{
				"age":         40,
				"post_op_day": 30,
				"diagnosis":   "x",
			},
		},
		&ProposedAction{Kind: "anything"},
	)

	require.NoError(t, err)
	require.Len(t, verdict.FiredRules, 3)
	assert.Equal(t, "A", verdict.FiredRules[0].RuleID)
	assert.Equal(t, "B", verdict.FiredRules[1].RuleID)
	assert.Equal(t, "C", verdict.FiredRules[2].RuleID)
	assert.Equal(t, []string{"note a", "note b"}, verdict.Annotations)
}

func TestEvaluateConflictingModificationsFail(t *testing.T) {
	source := `
domains:
  ortho:
    - id: SET_LOW
      when: {field: post_op_day, op: exists}
      action: modify
      severity: warning
      rationale: conservative load
      modify:
        set_params: {intensity: low}
    - id: SET_HIGH
      when: {field: post_op_day, op: exists}
      action: modify
      severity: warning
      rationale: aggressive load
      modify:
        set_params: {intensity: high}
`
	store := newStoreFromSource(t, source)
	guards, err := guardrails.NewEvaluator()
	require.NoError(t, err)
	engine := NewEngine(store, guards)

	_, err = engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "ortho",
			Attributes: map[string]any{
				"age":         40,
				"post_op_day": 5,
				"diagnosis":   "x",
			},
		},
		&ProposedAction{Kind: "strength_program"},
	)

	require.Error(t, err)
	var cfgErr *rules.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "intensity")
}

func TestEvaluateIdenticalModificationsCompose(t *testing.T) {
	source := `
domains:
  ortho:
    - id: SET_LOW_A
      when: {field: post_op_day, op: exists}
      action: modify
      severity: warning
      rationale: conservative load
      modify:
        set_params: {intensity: low}
    - id: SET_LOW_B
      when: {field: post_op_day, op: lt, value: 100}
      action: modify
      severity: warning
      rationale: also conservative
      modify:
        set_params: {intensity: low}
        add_components: [patient_education]
`
	store := newStoreFromSource(t, source)
	guards, err := guardrails.NewEvaluator()
	require.NoError(t, err)
	engine := NewEngine(store, guards)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "ortho",
			Attributes: map[string]any{
				"age":         40,
				"post_op_day": 5,
				"diagnosis":   "x",
			},
		},
		&ProposedAction{Kind: "strength_program"},
	)

	require.NoError(t, err)
	assert.Equal(t, StatusApprovedWithModification, verdict.Status)
	assert.Equal(t, "low", verdict.Action.Parameters["intensity"])
	assert.Equal(t, []string{"patient_education"}, verdict.Action.Components)
}

func TestEvaluateGuardrailWarningsBecomeAnnotations(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "mental_health",
			Attributes: map[string]any{
				"age":        66,
				"diagnosis":  "adjustment disorder",
				"phq9_score": 30,
			},
		},
		&ProposedAction{Kind: "supportive_counseling"},
	)

	require.NoError(t, err)
	// Out-of-range PHQ-9 warns but never blocks.
	assert.Equal(t, StatusApproved, verdict.Status)
	require.NotEmpty(t, verdict.Violations)
	assert.Equal(t, guardrails.SeverityWarning, verdict.Violations[0].Severity)
	require.NotEmpty(t, verdict.Annotations)
}

func TestEvaluateRationaleTemplatesFilled(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "mental_health",
			Attributes: map[string]any{
				"age":        66,
				"diagnosis":  "adjustment disorder",
				"phq9_score": 14,
			},
		},
		&ProposedAction{Kind: "supportive_counseling"},
	)

	require.NoError(t, err)
	var referral *FiredRule
	for i := range verdict.FiredRules {
		if verdict.FiredRules[i].RuleID == "PHQ9_ELEVATED_REFERRAL" {
			referral = &verdict.FiredRules[i]
		}
	}
	require.NotNil(t, referral, "PHQ9_ELEVATED_REFERRAL should fire at score 14")
	assert.Contains(t, referral.Rationale, "14")
	assert.NotContains(t, referral.Rationale, "{phq9_score}")
}

func TestEvaluateUnknownDomainApprovesWithNoRules(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "dermatology",
			Attributes: map[string]any{
				"age":       33,
				"diagnosis": "x",
			},
		},
		&ProposedAction{Kind: "anything"},
	)

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, verdict.Status)
	assert.Empty(t, verdict.FiredRules)
}

func TestEvaluateRecordsVerdictOnTracer(t *testing.T) {
	tracer := explain.NewTracer()
	engine := newTestEngine(t, WithTracer(tracer))

	_, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":         54,
				"post_op_day": 28,
				"diagnosis":   "rotator cuff repair",
			},
		},
		&ProposedAction{Kind: "range_of_motion"},
	)

	require.NoError(t, err)
	entries := tracer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, explain.KindVerdict, entries[0].Kind)
	assert.Equal(t, "orthopedic", entries[0].Payload["domain"])
}

func TestReportRendersAllSections(t *testing.T) {
	engine := newTestEngine(t)

	verdict, err := engine.Evaluate(context.Background(),
		&ClinicalContext{
			Domain: "orthopedic",
			Attributes: map[string]any{
				"age":         47,
				"post_op_day": 10,
				"diagnosis":   "ACL reconstruction",
			},
		},
		&ProposedAction{Kind: "range_of_motion"},
	)
	require.NoError(t, err)

	report := Report(verdict)
	assert.True(t, strings.Contains(report, "Approved with modification"))
	assert.True(t, strings.Contains(report, "ROM_ADD_CRYOTHERAPY"))
	assert.True(t, strings.Contains(report, "cryotherapy"))
}

// newStoreFromSource builds a store from inline YAML for tests.
func newStoreFromSource(t *testing.T, source string) *rules.Store {
	t.Helper()

	store, err := rules.NewStore()
	require.NoError(t, err)
	require.NoError(t, store.Reload([]byte(source), "test"))
	return store
}
