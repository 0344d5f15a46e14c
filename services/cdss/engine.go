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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianClinical/services/cdss/explain"
	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
)

// skipReasonShortCircuit explains rules skipped by a guardrail hard block.
const skipReasonShortCircuit = "not evaluated (guardrail short-circuit)"

// Engine evaluates proposed clinical actions.
//
// # Description
//
// One evaluation runs in three stages:
//
//  1. Guardrails. Every guardrail check runs against the context and the
//     original proposal. A hard-block violation ends evaluation: the
//     verdict is blocked, no clinical rule is consulted, and every rule
//     in the domain is recorded as skipped.
//  2. Rules. Each rule in the domain is evaluated in priority order.
//     Predicates always see the original proposal, never a partially
//     modified one, so the fired list is a pure function of the inputs.
//  3. Application. Block outranks everything. Otherwise fired
//     modifications are applied in priority order; two rules setting the
//     same parameter to different values is a configuration conflict.
//
// # Thread Safety
//
// Safe for concurrent use. The rule snapshot is taken once per
// evaluation, so a concurrent reload never splits a decision across two
// rule versions.
type Engine struct {
	store  *rules.Store
	guards *guardrails.Evaluator
	tracer *explain.Tracer
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer attaches an audit trail; every verdict is recorded on it.
func WithTracer(tracer *explain.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine over the given rule store and guardrails.
func NewEngine(store *rules.Store, guards *guardrails.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		guards: guards,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate produces a Verdict for one proposed action.
//
// Inputs:
//
//	ctx - Carries cancellation; evaluation itself does no I/O.
//	cc - The patient's clinical context.
//	action - The proposed intervention.
//
// Outputs:
//
//	*Verdict - The decision with its full explanation.
//	error - *rules.ConfigError when fired modify-rules conflict; nil
//	        otherwise. A blocked action is a verdict, not an error.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Engine) Evaluate(ctx context.Context, cc *ClinicalContext, action *ProposedAction) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cc == nil || action == nil {
		return nil, fmt.Errorf("cdss: context and action are required")
	}

	resolver := contextResolver{ctx: cc, action: action}
	domainRules := e.store.Lookup(cc.Domain)

	verdict, err := e.evaluate(resolver, cc, action, domainRules)
	if err != nil {
		e.logger.Error("evaluation failed",
			"domain", cc.Domain,
			"action_kind", action.Kind,
			"error", err,
		)
		return nil, err
	}

	evaluationsTotal.WithLabelValues(string(verdict.Status)).Inc()
	if verdict.ShortCircuit {
		guardrailShortCircuits.Inc()
	}

	e.logger.Info("action evaluated",
		"domain", cc.Domain,
		"action_kind", action.Kind,
		"status", verdict.Status,
		"fired_rules", len(verdict.FiredRules),
		"violations", len(verdict.Violations),
	)

	if e.tracer != nil {
		e.tracer.Record(explain.KindVerdict, verdictSummary(verdict), map[string]any{
			"domain":        verdict.Domain,
			"action_kind":   action.Kind,
			"status":        string(verdict.Status),
			"fired_rules":   firedRuleIDs(verdict.FiredRules),
			"violations":    violationCodes(verdict.Violations),
			"short_circuit": verdict.ShortCircuit,
		})
	}

	return verdict, nil
}

// evaluate is the pure core of one evaluation.
func (e *Engine) evaluate(resolver contextResolver, cc *ClinicalContext, action *ProposedAction, domainRules []rules.Rule) (*Verdict, error) {
	violations := e.guards.Check(resolver)
	violations = orderViolations(violations)

	verdict := &Verdict{
		Domain:     cc.Domain,
		Action:     action.Clone(),
		Violations: violations,
	}

	if guardrails.HasHardBlock(violations) {
		verdict.Status = StatusBlocked
		verdict.ShortCircuit = true
		for i := range domainRules {
			verdict.SkippedRules = append(verdict.SkippedRules, SkippedRule{
				RuleID: domainRules[i].ID,
				Reason: skipReasonShortCircuit,
			})
		}
		appendWarningAnnotations(verdict, violations)
		return verdict, nil
	}

	// Predicates evaluate against the original proposal. Modifications
	// are applied afterwards, so rule order cannot change which rules
	// fire.
	var fired []rules.Rule
	for i := range domainRules {
		rule := &domainRules[i]
		if !rule.When.Eval(resolver) {
			continue
		}
		fired = append(fired, *rule)
		verdict.FiredRules = append(verdict.FiredRules, FiredRule{
			RuleID:        rule.ID,
			Action:        rule.Action,
			Severity:      rule.Severity,
			Rationale:     fillTemplate(rule.Rationale, resolver),
			EvidenceLevel: rule.EvidenceLevel,
			EvidenceRefs:  rule.EvidenceRefs,
		})
	}

	blocked := false
	for i := range fired {
		if fired[i].Action == rules.ActionBlock {
			blocked = true
		}
		if fired[i].Action == rules.ActionAnnotate {
			verdict.Annotations = append(verdict.Annotations,
				fillTemplate(fired[i].Annotation, resolver))
		}
	}
	appendWarningAnnotations(verdict, violations)

	if blocked {
		verdict.Status = StatusBlocked
		return verdict, nil
	}

	modified, err := applyModifications(&verdict.Action, fired)
	if err != nil {
		return nil, err
	}
	if modified {
		verdict.Status = StatusApprovedWithModification
	} else {
		verdict.Status = StatusApproved
	}
	return verdict, nil
}

// applyModifications applies fired modify-rules in priority order.
//
// Two fired rules setting the same parameter to different values is a
// *rules.ConfigError: the conflict lives in the rule definitions, not in
// the patient data. Identical values and disjoint parameters compose.
func applyModifications(action *ProposedAction, fired []rules.Rule) (bool, error) {
	modified := false
	setBy := make(map[string]string)

	for i := range fired {
		rule := &fired[i]
		if rule.Action != rules.ActionModify || rule.Modify.IsEmpty() {
			continue
		}

		for _, key := range sortedKeys(rule.Modify.SetParams) {
			value := rule.Modify.SetParams[key]
			if prev, ok := setBy[key]; ok && prev != value {
				return false, &rules.ConfigError{
					Source: rule.ID,
					Detail: fmt.Sprintf(
						"parameter %q set to %q conflicts with earlier rule value %q",
						key, value, prev),
				}
			}
			setBy[key] = value

			if action.Parameters == nil {
				action.Parameters = make(map[string]string)
			}
			if action.Parameters[key] != value {
				action.Parameters[key] = value
				modified = true
			}
		}

		for _, component := range rule.Modify.AddComponents {
			if !action.HasComponent(component) {
				action.Components = append(action.Components, component)
				modified = true
			}
		}
	}

	return modified, nil
}

// orderViolations places hard blocks before warnings, keeping definition
// order within each group.
func orderViolations(violations []guardrails.Violation) []guardrails.Violation {
	if len(violations) < 2 {
		return violations
	}
	out := make([]guardrails.Violation, 0, len(violations))
	for _, v := range violations {
		if v.IsHardBlock() {
			out = append(out, v)
		}
	}
	for _, v := range violations {
		if !v.IsHardBlock() {
			out = append(out, v)
		}
	}
	return out
}

// appendWarningAnnotations surfaces guardrail warnings as annotations.
func appendWarningAnnotations(verdict *Verdict, violations []guardrails.Violation) {
	for _, v := range violations {
		if !v.IsHardBlock() {
			verdict.Annotations = append(verdict.Annotations, v.Message)
		}
	}
}

func verdictSummary(v *Verdict) string {
	if v.ShortCircuit {
		return fmt.Sprintf("%s action blocked by guardrail", v.Action.Kind)
	}
	return fmt.Sprintf("%s action %s", v.Action.Kind, v.Status)
}

func firedRuleIDs(fired []FiredRule) []string {
	out := make([]string, len(fired))
	for i, f := range fired {
		out[i] = f.RuleID
	}
	return out
}

func violationCodes(violations []guardrails.Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.ReasonCode
	}
	return out
}
