// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cdss is the clinical decision support engine. It takes a
// proposed clinical action plus the patient's clinical context and
// produces a Verdict: approved, approved with modification, or blocked,
// with the fired rules and guardrail violations that explain it.
//
// Evaluation is pure and deterministic. The same context, action, and
// rule set always produce the same Verdict, which is what makes the
// audit trail trustworthy.
package cdss

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
)

// Status is the outcome of one evaluation.
type Status string

const (
	// StatusApproved means the action proceeds unchanged.
	StatusApproved Status = "approved"

	// StatusApprovedWithModification means the action proceeds with the
	// adjustments in Verdict.Action applied.
	StatusApprovedWithModification Status = "approved-with-modification"

	// StatusBlocked means the action must not proceed.
	StatusBlocked Status = "blocked"
)

// ProposedAction is a clinical intervention under evaluation.
type ProposedAction struct {
	// Kind names the intervention (e.g. "range_of_motion").
	Kind string `json:"kind" yaml:"kind"`

	// Description is free text for the clinician.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Parameters are named intervention settings (dose, frequency).
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Components are the pieces making up the intervention.
	Components []string `json:"components,omitempty" yaml:"components,omitempty"`
}

// Clone returns a deep copy. Verdicts carry a clone so rule
// modifications never mutate the caller's proposal.
func (a ProposedAction) Clone() ProposedAction {
	out := a
	if a.Parameters != nil {
		out.Parameters = make(map[string]string, len(a.Parameters))
		for k, v := range a.Parameters {
			out.Parameters[k] = v
		}
	}
	if a.Components != nil {
		out.Components = append([]string(nil), a.Components...)
	}
	return out
}

// HasComponent reports whether the action already includes a component.
func (a ProposedAction) HasComponent(name string) bool {
	for _, c := range a.Components {
		if c == name {
			return true
		}
	}
	return false
}

// ClinicalContext is the patient state an evaluation runs against.
type ClinicalContext struct {
	// Domain selects which rule domain applies (e.g. "orthopedic").
	Domain string `json:"domain" yaml:"domain"`

	// Attributes are the patient data fields rules predicate on
	// (age, post_op_day, visual_acuity_logmar, ...).
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// contextResolver exposes context plus action fields to predicates.
//
// Resolution order for a field name:
//
//	"domain"              the context's domain
//	"action.kind"         the proposed action's kind
//	"action.components"   the proposed action's component list
//	"action.param.<name>" one proposed action parameter
//	anything else         a context attribute
type contextResolver struct {
	ctx    *ClinicalContext
	action *ProposedAction
}

const actionParamPrefix = "action.param."

func (r contextResolver) Field(name string) (any, bool) {
	switch name {
	case "domain":
		return r.ctx.Domain, true
	case "action.kind":
		return r.action.Kind, true
	case "action.components":
		out := make([]any, len(r.action.Components))
		for i, c := range r.action.Components {
			out[i] = c
		}
		return out, true
	}

	if strings.HasPrefix(name, actionParamPrefix) {
		v, ok := r.action.Parameters[strings.TrimPrefix(name, actionParamPrefix)]
		return v, ok
	}

	v, ok := r.ctx.Attributes[name]
	return v, ok
}

// FiredRule records one rule whose predicate held during evaluation.
type FiredRule struct {
	// RuleID identifies the rule within the context's domain.
	RuleID string `json:"rule_id"`

	// Action is what the rule did (approve, modify, block, annotate).
	Action rules.Action `json:"action"`

	// Severity is the rule's clinical weight.
	Severity rules.Severity `json:"severity"`

	// Rationale is the rule's explanation with {field} placeholders
	// filled from the clinical context.
	Rationale string `json:"rationale"`

	// EvidenceLevel grades the supporting evidence, when declared.
	EvidenceLevel rules.EvidenceLevel `json:"evidence_level,omitempty"`

	// EvidenceRefs cites supporting literature, when declared.
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// SkippedRule records a rule that was not evaluated and why.
type SkippedRule struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// Verdict is the complete result of one evaluation.
//
// A Verdict is a value: it carries no timestamps or random identifiers,
// so evaluating the same inputs twice yields equal Verdicts.
type Verdict struct {
	// Status is the outcome.
	Status Status `json:"status"`

	// Action is the action as approved. For StatusApprovedWithModification
	// it includes the applied adjustments; for StatusBlocked it is the
	// untouched proposal.
	Action ProposedAction `json:"action"`

	// Domain is the rule domain that was consulted.
	Domain string `json:"domain"`

	// FiredRules lists every rule whose predicate held, in priority
	// order. Empty when a guardrail hard block short-circuited.
	FiredRules []FiredRule `json:"fired_rules,omitempty"`

	// SkippedRules lists rules that were never evaluated.
	SkippedRules []SkippedRule `json:"skipped_rules,omitempty"`

	// Violations lists fired guardrails, hard blocks first in
	// definition order, then warnings.
	Violations []guardrails.Violation `json:"violations,omitempty"`

	// Annotations collects notes from annotate-rules and guardrail
	// warnings.
	Annotations []string `json:"annotations,omitempty"`

	// ShortCircuit is true when a guardrail hard block stopped
	// evaluation before any rule was consulted.
	ShortCircuit bool `json:"short_circuit,omitempty"`
}

// Blocked reports whether the action must not proceed.
func (v *Verdict) Blocked() bool {
	return v.Status == StatusBlocked
}

// fillTemplate substitutes {field} placeholders from the resolver.
// Unknown fields render as the placeholder itself so a template typo is
// visible instead of silently blank.
func fillTemplate(template string, fields rules.FieldResolver) string {
	if !strings.Contains(template, "{") {
		return strings.TrimSpace(template)
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		close := strings.Index(rest[open:], "}")
		if close < 0 {
			b.WriteString(rest)
			break
		}
		close += open

		b.WriteString(rest[:open])
		name := rest[open+1 : close]
		if value, ok := fields.Field(name); ok {
			b.WriteString(fmt.Sprintf("%v", value))
		} else {
			b.WriteString(rest[open : close+1])
		}
		rest = rest[close+1:]
	}
	return strings.TrimSpace(b.String())
}

// sortedKeys returns map keys in stable order for deterministic output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
