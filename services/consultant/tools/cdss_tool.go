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
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianClinical/services/cdss"
)

// cdssTool exposes the decision engine to the model as a tool.
//
// The model proposes an intervention and gets back the full verdict
// report: approved, approved with modification, or blocked, with the
// rules and guardrails that explain it.
type cdssTool struct {
	engine   *cdss.Engine
	validate *validator.Validate
}

// NewCDSSTool creates the cdss_evaluate tool over the given engine.
func NewCDSSTool(engine *cdss.Engine) Tool {
	return &cdssTool{
		engine:   engine,
		validate: validator.New(),
	}
}

// evaluateInput is the decoded and validated tool input.
type evaluateInput struct {
	Domain      string            `json:"domain" validate:"required"`
	ActionKind  string            `json:"action_kind" validate:"required"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
	Components  []string          `json:"components"`
	Attributes  map[string]any    `json:"attributes"`
}

func (t *cdssTool) Name() string {
	return "cdss_evaluate"
}

func (t *cdssTool) Category() Category {
	return CategoryTreatment
}

func (t *cdssTool) Definition() Definition {
	return Definition{
		Name: "cdss_evaluate",
		Description: "Evaluates a proposed clinical intervention against the active " +
			"rule set and safety guardrails. Returns the verdict with the rules " +
			"that fired and any required modifications. Always call this before " +
			"recommending an intervention.",
		Parameters: map[string]ParamDef{
			"domain": {
				Type:        ParamTypeString,
				Description: "Clinical rule domain, e.g. 'orthopedic' or 'low_vision'",
				Required:    true,
			},
			"action_kind": {
				Type:        ParamTypeString,
				Description: "The intervention identifier, e.g. 'range_of_motion'",
				Required:    true,
			},
			"description": {
				Type:        ParamTypeString,
				Description: "Free-text description of the intervention",
				Required:    false,
			},
			"parameters": {
				Type:        ParamTypeObject,
				Description: "Named intervention settings (dose, frequency, intensity)",
				Required:    false,
			},
			"components": {
				Type:        ParamTypeArray,
				Description: "Components making up the intervention",
				Required:    false,
				Items:       &ParamDef{Type: ParamTypeString},
			},
			"attributes": {
				Type: ParamTypeObject,
				Description: "Patient data fields the rules predicate on " +
					"(age, post_op_day, diagnosis, visual_acuity_logmar, ...)",
				Required: false,
			},
		},
		Category:       CategoryTreatment,
		SideEffectFree: true,
	}
}

func (t *cdssTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	input, err := decodeEvaluateInput(params)
	if err != nil {
		return nil, err
	}
	if err := t.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid evaluation request: %w", err)
	}

	verdict, err := t.engine.Evaluate(ctx,
		&cdss.ClinicalContext{
			Domain:     input.Domain,
			Attributes: input.Attributes,
		},
		&cdss.ProposedAction{
			Kind:        input.ActionKind,
			Description: input.Description,
			Parameters:  input.Parameters,
			Components:  input.Components,
		},
	)
	if err != nil {
		return nil, err
	}

	return &Result{Success: true, Output: cdss.Report(verdict)}, nil
}

// decodeEvaluateInput converts the loosely typed tool parameters into the
// input struct via JSON round trip, the same shape the model produced.
func decodeEvaluateInput(params map[string]any) (*evaluateInput, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluation request: %w", err)
	}

	var input evaluateInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("invalid evaluation request: %w", err)
	}
	return &input, nil
}
