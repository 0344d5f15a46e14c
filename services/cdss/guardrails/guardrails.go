// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardrails runs safety checks before any clinical rule is
// consulted. Guardrails protect against implausible data and categorically
// unsafe proposals; they never encode treatment preference. A hard-block
// violation stops the decision pipeline outright.
package guardrails

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules/enforcement"
)

// Severity grades a guardrail outcome.
type Severity string

const (
	// SeverityWarning attaches a caution to the verdict without
	// stopping evaluation.
	SeverityWarning Severity = "warning"

	// SeverityHardBlock stops the decision pipeline. No clinical rule
	// is evaluated after a hard block fires.
	SeverityHardBlock Severity = "hard_block"
)

// UnmarshalYAML validates Severity against the known enum.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := Severity(raw)
	switch incoming {
	case SeverityWarning, SeverityHardBlock:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for guardrail severity: %q", incoming)
	}
}

// Violation is one fired guardrail.
type Violation struct {
	// ReasonCode is the stable machine-readable identifier
	// (e.g. "EARLY_WEIGHT_BEARING").
	ReasonCode string `json:"reason_code"`

	// Severity is warning or hard_block.
	Severity Severity `json:"severity"`

	// Message is the human-facing explanation.
	Message string `json:"message"`
}

// IsHardBlock reports whether this violation stops evaluation.
func (v Violation) IsHardBlock() bool {
	return v.Severity == SeverityHardBlock
}

// Check is one declarative guardrail.
type Check struct {
	// ID uniquely identifies the check.
	ID string `yaml:"id"`

	// ReasonCode is the stable identifier attached to violations.
	// Defaults to ID when empty.
	ReasonCode string `yaml:"reason_code"`

	// Severity is warning or hard_block.
	Severity Severity `yaml:"severity"`

	// When is the violation predicate: the check fires when it holds.
	When *rules.Expr `yaml:"when"`

	// Message is the human-facing explanation.
	Message string `yaml:"message"`
}

// validate checks structural soundness of one check.
func (c *Check) validate(index int) error {
	if c.ID == "" {
		return fmt.Errorf("guardrail[%d]: missing id", index)
	}
	if c.Severity == "" {
		return fmt.Errorf("guardrail %q: missing severity", c.ID)
	}
	if c.When == nil {
		return fmt.Errorf("guardrail %q: missing predicate", c.ID)
	}
	if err := c.When.Validate(); err != nil {
		return fmt.Errorf("guardrail %q: %w", c.ID, err)
	}
	if c.Message == "" {
		return fmt.Errorf("guardrail %q: missing message", c.ID)
	}
	return nil
}

// guardrailFile is the YAML shape of a guardrail definition source.
type guardrailFile struct {
	Version string  `yaml:"version"`
	Checks  []Check `yaml:"checks"`
}

// Evaluator runs a fixed, ordered list of guardrail checks.
//
// An Evaluator is immutable after construction and safe for concurrent
// use. Check evaluation is pure: the same fields always produce the same
// violations in the same order.
type Evaluator struct {
	version string
	checks  []Check
}

// Parse validates a YAML guardrail source and builds an Evaluator.
// Any malformed check rejects the whole source with a *rules.ConfigError.
func Parse(source []byte, origin string) (*Evaluator, error) {
	var file guardrailFile
	if err := yaml.Unmarshal(source, &file); err != nil {
		return nil, &rules.ConfigError{Source: origin, Detail: "malformed YAML", Err: err}
	}
	if len(file.Checks) == 0 {
		return nil, &rules.ConfigError{Source: origin, Detail: "no guardrail checks defined"}
	}

	seen := make(map[string]bool, len(file.Checks))
	for i := range file.Checks {
		check := &file.Checks[i]
		if err := check.validate(i); err != nil {
			return nil, &rules.ConfigError{Source: origin, Err: err}
		}
		if seen[check.ID] {
			return nil, &rules.ConfigError{
				Source: origin,
				Detail: fmt.Sprintf("duplicate guardrail id %q", check.ID),
			}
		}
		seen[check.ID] = true
		if check.ReasonCode == "" {
			check.ReasonCode = check.ID
		}
	}

	return &Evaluator{version: file.Version, checks: file.Checks}, nil
}

// NewEvaluator builds the Evaluator from the embedded default checks.
func NewEvaluator() (*Evaluator, error) {
	return Parse(enforcement.DefaultGuardrailDefinitions, "embedded")
}

// Version returns the declared version of the guardrail definitions.
func (e *Evaluator) Version() string {
	return e.version
}

// Len returns the number of checks.
func (e *Evaluator) Len() int {
	return len(e.checks)
}

// Check evaluates every guardrail against the given fields.
//
// Description:
//
//	All checks run even after a hard block fires, so the returned list
//	is the complete picture of what is wrong with the input. Violations
//	are returned in definition order.
//
// Outputs:
//
//	[]Violation - Fired guardrails in definition order; empty when all
//	              checks pass.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Evaluator) Check(fields rules.FieldResolver) []Violation {
	var violations []Violation
	for i := range e.checks {
		check := &e.checks[i]
		if check.When.Eval(fields) {
			violations = append(violations, Violation{
				ReasonCode: check.ReasonCode,
				Severity:   check.Severity,
				Message:    check.Message,
			})
		}
	}
	return violations
}

// HasHardBlock reports whether any violation in the list is a hard block.
func HasHardBlock(violations []Violation) bool {
	for _, v := range violations {
		if v.IsHardBlock() {
			return true
		}
	}
	return false
}
