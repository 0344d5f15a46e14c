// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules loads and indexes declarative clinical rules.
//
// Rules are defined in YAML, grouped by clinical domain. Each rule pairs a
// pure applicability predicate (see Expr) with an action the decision engine
// takes when the predicate holds. Loading is all-or-nothing: a single
// malformed rule rejects the entire definition file, and a live Store is
// only ever replaced atomically with a fully validated set.
package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Action is what the engine does when a rule's predicate holds.
type Action string

const (
	// ActionApprove marks the proposed action as explicitly supported.
	ActionApprove Action = "approve"

	// ActionModify adjusts the proposed action before approval.
	ActionModify Action = "modify"

	// ActionBlock rejects the proposed action.
	ActionBlock Action = "block"

	// ActionAnnotate attaches a note without changing the outcome.
	ActionAnnotate Action = "annotate"
)

// Severity grades the clinical weight of a rule.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// EvidenceLevel follows the Oxford CEBM grading used in the rule corpus.
type EvidenceLevel string

// evidenceScores orders evidence levels for annotation purposes. Higher is
// stronger. Scores never influence verdict status, only presentation.
var evidenceScores = map[EvidenceLevel]int{
	"1a": 20, "1b": 18, "2a": 14, "2b": 12,
	"3": 8, "4": 5, "5": 2, "C": 3, "D": 1,
}

// Score returns the ordering weight of the evidence level (0 if unknown).
func (e EvidenceLevel) Score() int {
	return evidenceScores[e]
}

// UnmarshalYAML validates Action against the known enum.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Action(s)
	switch incoming {
	case ActionApprove, ActionModify, ActionBlock, ActionAnnotate:
		*a = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for rule action: %q", incoming)
	}
}

// UnmarshalYAML validates Severity against the known enum.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := Severity(raw)
	switch incoming {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for rule severity: %q", incoming)
	}
}

// UnmarshalYAML validates EvidenceLevel against the grading table.
func (e *EvidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := EvidenceLevel(raw)
	if _, ok := evidenceScores[incoming]; !ok {
		return fmt.Errorf("invalid value for evidence level: %q", incoming)
	}
	*e = incoming
	return nil
}

// Modification describes how a modify-rule adjusts the proposed action.
//
// Later modifications in priority order may refine earlier ones; a second
// rule setting the same parameter to a different value is a configuration
// conflict the engine surfaces as a ConfigError at evaluation time.
type Modification struct {
	// SetParams sets or overrides named action parameters.
	SetParams map[string]string `yaml:"set_params,omitempty" json:"set_params,omitempty"`

	// AddComponents appends components (e.g. "cryotherapy") to the action.
	AddComponents []string `yaml:"add_components,omitempty" json:"add_components,omitempty"`
}

// IsEmpty reports whether the modification changes nothing.
func (m *Modification) IsEmpty() bool {
	return m == nil || (len(m.SetParams) == 0 && len(m.AddComponents) == 0)
}

// Rule is one declarative clinical rule.
//
// Rules are immutable once loaded. The When predicate is pure data: it is
// validated structurally at load time and evaluated without executing
// anything from the definition file.
type Rule struct {
	// ID uniquely identifies the rule within its domain.
	ID string `yaml:"id" json:"id"`

	// Description is a short human-facing summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// When is the applicability predicate.
	When *Expr `yaml:"when" json:"when"`

	// Action is what the engine does when the predicate holds.
	Action Action `yaml:"action" json:"action"`

	// Severity grades the rule's clinical weight.
	Severity Severity `yaml:"severity" json:"severity"`

	// Rationale is a template explaining the decision. Placeholders of the
	// form {field} are filled from the clinical context at evaluation time.
	Rationale string `yaml:"rationale" json:"rationale"`

	// EvidenceLevel grades the supporting evidence (optional).
	EvidenceLevel EvidenceLevel `yaml:"evidence_level,omitempty" json:"evidence_level,omitempty"`

	// EvidenceRefs cites supporting literature (optional).
	EvidenceRefs []string `yaml:"evidence_refs,omitempty" json:"evidence_refs,omitempty"`

	// Modify is required for and only valid with ActionModify.
	Modify *Modification `yaml:"modify,omitempty" json:"modify,omitempty"`

	// Annotation is required for and only valid with ActionAnnotate.
	Annotation string `yaml:"annotation,omitempty" json:"annotation,omitempty"`
}

// validate checks invariants that span multiple fields of one rule.
func (r *Rule) validate(domain string, index int) error {
	if r.ID == "" {
		return fmt.Errorf("domain %q rule[%d]: missing id", domain, index)
	}
	if r.When == nil {
		return fmt.Errorf("domain %q rule %q: missing predicate", domain, r.ID)
	}
	if err := r.When.Validate(); err != nil {
		return fmt.Errorf("domain %q rule %q: %w", domain, r.ID, err)
	}
	if r.Action == "" {
		return fmt.Errorf("domain %q rule %q: missing action", domain, r.ID)
	}
	if r.Severity == "" {
		return fmt.Errorf("domain %q rule %q: missing severity", domain, r.ID)
	}
	if r.Rationale == "" {
		return fmt.Errorf("domain %q rule %q: missing rationale", domain, r.ID)
	}
	if r.Action == ActionModify && r.Modify.IsEmpty() {
		return fmt.Errorf("domain %q rule %q: action modify requires a modify block", domain, r.ID)
	}
	if r.Action != ActionModify && !r.Modify.IsEmpty() {
		return fmt.Errorf("domain %q rule %q: modify block only valid with action modify", domain, r.ID)
	}
	if r.Action == ActionAnnotate && r.Annotation == "" {
		return fmt.Errorf("domain %q rule %q: action annotate requires an annotation", domain, r.ID)
	}
	return nil
}

// RuleSet is an immutable, versioned collection of rules grouped by
// clinical domain. Within a domain, slice order defines evaluation
// priority. A RuleSet is never mutated after construction; reload builds
// a new one and swaps it in atomically.
type RuleSet struct {
	version string
	domains map[string][]Rule
	total   int
}

// Version returns the declared version of the rule definitions.
func (s *RuleSet) Version() string {
	return s.version
}

// Lookup returns the rules for a domain in priority order.
//
// Unknown domains return an empty slice, not an error. The returned slice
// is a copy; callers cannot mutate the set through it.
func (s *RuleSet) Lookup(domain string) []Rule {
	if s == nil {
		return nil
	}
	src := s.domains[domain]
	out := make([]Rule, len(src))
	copy(out, src)
	return out
}

// Domains returns the domain names present in the set.
func (s *RuleSet) Domains() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.domains))
	for domain := range s.domains {
		out = append(out, domain)
	}
	return out
}

// Len returns the total number of rules across all domains.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return s.total
}
