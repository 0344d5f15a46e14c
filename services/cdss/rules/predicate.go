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
	"fmt"
	"strings"
)

// Op is a comparison operator in a predicate leaf.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"
	OpContains Op = "contains"
	OpExists   Op = "exists"
	OpAbsent   Op = "absent"
)

// validOps contains every operator the predicate language accepts.
var validOps = map[Op]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpContains: true, OpExists: true, OpAbsent: true,
}

// FieldResolver supplies context attribute values to predicate evaluation.
//
// Implementations must be deterministic for the lifetime of one evaluation:
// Field must return the same value for the same name every time it is asked.
type FieldResolver interface {
	// Field returns the value of the named attribute and whether it exists.
	Field(name string) (any, bool)
}

// Expr is a node in a declarative predicate expression tree.
//
// Exactly one variant must be populated per node:
//
//	all:    every child must hold (logical AND)
//	any:    at least one child must hold (logical OR)
//	not:    the child must not hold
//	leaf:   field + op (+ value for binary operators)
//
// Predicates are data, not code: they are validated structurally at load
// time and evaluated without invoking anything from the rule definition
// itself. Evaluation is pure and side-effect free.
type Expr struct {
	All []Expr `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Expr `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Expr  `yaml:"not,omitempty" json:"not,omitempty"`

	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    Op     `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Validate checks the structural soundness of the expression tree.
//
// Description:
//
//	Ensures exactly one variant is set per node, that leaf operators are
//	known, and that binary operators carry a value. Called during rule
//	load so that a malformed predicate fails the whole load rather than
//	surfacing mid-evaluation.
//
// Outputs:
//
//	error - Non-nil describing the first structural problem found.
func (e *Expr) Validate() error {
	if e == nil {
		return fmt.Errorf("predicate is missing")
	}

	variants := 0
	if len(e.All) > 0 {
		variants++
	}
	if len(e.Any) > 0 {
		variants++
	}
	if e.Not != nil {
		variants++
	}
	if e.Field != "" || e.Op != "" {
		variants++
	}

	switch variants {
	case 0:
		return fmt.Errorf("predicate node is empty: one of all/any/not/field required")
	case 1:
		// ok
	default:
		return fmt.Errorf("predicate node mixes variants: exactly one of all/any/not/field allowed")
	}

	for i := range e.All {
		if err := e.All[i].Validate(); err != nil {
			return fmt.Errorf("all[%d]: %w", i, err)
		}
	}
	for i := range e.Any {
		if err := e.Any[i].Validate(); err != nil {
			return fmt.Errorf("any[%d]: %w", i, err)
		}
	}
	if e.Not != nil {
		if err := e.Not.Validate(); err != nil {
			return fmt.Errorf("not: %w", err)
		}
	}

	if e.Field != "" || e.Op != "" {
		if e.Field == "" {
			return fmt.Errorf("leaf predicate missing field")
		}
		if !validOps[e.Op] {
			return fmt.Errorf("leaf predicate for field %q has unknown op %q", e.Field, e.Op)
		}
		needsValue := e.Op != OpExists && e.Op != OpAbsent
		if needsValue && e.Value == nil {
			return fmt.Errorf("leaf predicate %s %s requires a value", e.Field, e.Op)
		}
	}

	return nil
}

// Eval evaluates the predicate against the given resolver.
//
// Description:
//
//	Pure and deterministic: the result depends only on the expression
//	tree and the resolver's values. Missing fields fail every operator
//	except absent (true) and exists (false).
//
// Inputs:
//
//	fields - Attribute source for leaf predicates.
//
// Outputs:
//
//	bool - True if the predicate holds.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Expr) Eval(fields FieldResolver) bool {
	switch {
	case len(e.All) > 0:
		for i := range e.All {
			if !e.All[i].Eval(fields) {
				return false
			}
		}
		return true

	case len(e.Any) > 0:
		for i := range e.Any {
			if e.Any[i].Eval(fields) {
				return true
			}
		}
		return false

	case e.Not != nil:
		return !e.Not.Eval(fields)

	default:
		return e.evalLeaf(fields)
	}
}

// evalLeaf evaluates a single field comparison.
func (e *Expr) evalLeaf(fields FieldResolver) bool {
	value, ok := fields.Field(e.Field)

	switch e.Op {
	case OpExists:
		return ok
	case OpAbsent:
		return !ok
	}

	if !ok {
		return false
	}

	switch e.Op {
	case OpEq:
		return valuesEqual(value, e.Value)
	case OpNe:
		return !valuesEqual(value, e.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareNumeric(value, e.Value, e.Op)
	case OpIn:
		return valueInList(value, e.Value)
	case OpNotIn:
		return !valueInList(value, e.Value)
	case OpContains:
		return listContains(value, e.Value)
	}

	return false
}

// valuesEqual compares two values with numeric coercion.
//
// YAML and JSON decode numbers to different Go types (int vs float64),
// so equality on numbers goes through float conversion.
func valuesEqual(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric applies an ordering operator with numeric coercion.
// Non-numeric operands make the comparison false.
func compareNumeric(a, b any, op Op) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if !aok || !bok {
		return false
	}

	switch op {
	case OpGt:
		return fa > fb
	case OpGte:
		return fa >= fb
	case OpLt:
		return fa < fb
	case OpLte:
		return fa <= fb
	}
	return false
}

// valueInList reports whether the field value equals any member of the
// predicate value list.
func valueInList(value, list any) bool {
	for _, member := range asList(list) {
		if valuesEqual(value, member) {
			return true
		}
	}
	return false
}

// listContains reports whether the field value, treated as a list,
// contains the predicate value.
func listContains(value, member any) bool {
	for _, candidate := range asList(value) {
		if valuesEqual(candidate, member) {
			return true
		}
	}
	return false
}

// asList normalizes list-shaped values from YAML/JSON decoding.
func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// toFloat coerces numeric types to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// String renders a compact single-line form of the predicate for traces.
func (e *Expr) String() string {
	switch {
	case len(e.All) > 0:
		parts := make([]string, len(e.All))
		for i := range e.All {
			parts[i] = e.All[i].String()
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	case len(e.Any) > 0:
		parts := make([]string, len(e.Any))
		for i := range e.Any {
			parts[i] = e.Any[i].String()
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case e.Not != nil:
		return "NOT " + e.Not.String()
	default:
		if e.Op == OpExists || e.Op == OpAbsent {
			return fmt.Sprintf("%s %s", e.Field, e.Op)
		}
		return fmt.Sprintf("%s %s %v", e.Field, e.Op, e.Value)
	}
}
