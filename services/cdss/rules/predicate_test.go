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
	"testing"

	"gopkg.in/yaml.v3"
)

// mapResolver resolves fields from a plain map for tests.
type mapResolver map[string]any

func (m mapResolver) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func TestExprEval(t *testing.T) {
	fields := mapResolver{
		"post_op_day":   10,
		"age":           54,
		"domain":        "orthopedic",
		"comorbidities": []any{"diabetes", "hypertension"},
		"phq9_score":    12.0,
	}

	tests := []struct {
		name string
		yaml string
		want bool
	}{
		{
			name: "eq match",
			yaml: `{field: domain, op: eq, value: orthopedic}`,
			want: true,
		},
		{
			name: "eq mismatch",
			yaml: `{field: domain, op: eq, value: low_vision}`,
			want: false,
		},
		{
			name: "numeric coercion int field float value",
			yaml: `{field: post_op_day, op: eq, value: 10.0}`,
			want: true,
		},
		{
			name: "lt holds",
			yaml: `{field: post_op_day, op: lt, value: 14}`,
			want: true,
		},
		{
			name: "gte boundary",
			yaml: `{field: post_op_day, op: gte, value: 10}`,
			want: true,
		},
		{
			name: "in list",
			yaml: `{field: domain, op: in, value: [orthopedic, neurologic]}`,
			want: true,
		},
		{
			name: "not_in list",
			yaml: `{field: domain, op: not_in, value: [cardiac, neurologic]}`,
			want: true,
		},
		{
			name: "contains on list field",
			yaml: `{field: comorbidities, op: contains, value: diabetes}`,
			want: true,
		},
		{
			name: "contains miss",
			yaml: `{field: comorbidities, op: contains, value: copd}`,
			want: false,
		},
		{
			name: "exists on present field",
			yaml: `{field: age, op: exists}`,
			want: true,
		},
		{
			name: "absent on missing field",
			yaml: `{field: lighting_assessed, op: absent}`,
			want: true,
		},
		{
			name: "missing field fails ordering",
			yaml: `{field: missing_field, op: gt, value: 1}`,
			want: false,
		},
		{
			name: "all requires every child",
			yaml: `
all:
  - {field: post_op_day, op: lt, value: 14}
  - {field: domain, op: eq, value: orthopedic}`,
			want: true,
		},
		{
			name: "all fails on one child",
			yaml: `
all:
  - {field: post_op_day, op: lt, value: 14}
  - {field: domain, op: eq, value: cardiac}`,
			want: false,
		},
		{
			name: "any needs one child",
			yaml: `
any:
  - {field: domain, op: eq, value: cardiac}
  - {field: phq9_score, op: gte, value: 10}`,
			want: true,
		},
		{
			name: "not inverts",
			yaml: `
not:
  field: domain
  op: eq
  value: cardiac`,
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var expr Expr
			if err := yaml.Unmarshal([]byte(tc.yaml), &expr); err != nil {
				t.Fatalf("failed to parse predicate: %v", err)
			}
			if err := expr.Validate(); err != nil {
				t.Fatalf("predicate failed validation: %v", err)
			}

			got := expr.Eval(fields)
			if got != tc.want {
				t.Errorf("Eval() = %v, want %v for %s", got, tc.want, expr.String())
			}

			// Evaluation is pure: a second pass must agree.
			if again := expr.Eval(fields); again != got {
				t.Errorf("Eval() not deterministic: first %v, second %v", got, again)
			}
		})
	}
}

func TestExprValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name:    "valid leaf",
			yaml:    `{field: age, op: gte, value: 0}`,
			wantErr: false,
		},
		{
			name:    "empty node",
			yaml:    `{}`,
			wantErr: true,
		},
		{
			name:    "unknown op",
			yaml:    `{field: age, op: between, value: 5}`,
			wantErr: true,
		},
		{
			name:    "binary op without value",
			yaml:    `{field: age, op: gt}`,
			wantErr: true,
		},
		{
			name:    "exists needs no value",
			yaml:    `{field: age, op: exists}`,
			wantErr: false,
		},
		{
			name: "mixed variants rejected",
			yaml: `
field: age
op: exists
all:
  - {field: age, op: gt, value: 1}`,
			wantErr: true,
		},
		{
			name: "nested invalid child surfaces",
			yaml: `
all:
  - {field: age, op: gt, value: 1}
  - {field: "", op: eq, value: 2}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var expr Expr
			if err := yaml.Unmarshal([]byte(tc.yaml), &expr); err != nil {
				t.Fatalf("failed to parse predicate: %v", err)
			}

			err := expr.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
