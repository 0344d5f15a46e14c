// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and execution framework for the
// clinical consultant.
//
// Tools are how the model acts during a consultation: running visual
// calculations, asking the decision engine about a proposed intervention,
// or thinking out loud. Each tool is described by a Definition the model
// sees and implements the Tool interface for execution.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"time"
)

// Category groups tools by clinical purpose.
type Category string

const (
	// CategoryAssessment includes tools that measure or interpret
	// patient findings.
	CategoryAssessment Category = "assessment"

	// CategoryTreatment includes tools that evaluate or shape
	// interventions.
	CategoryTreatment Category = "treatment"

	// CategoryReasoning includes tools that structure the model's own
	// thinking without touching patient data.
	CategoryReasoning Category = "reasoning"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"

	// ParamTypeFloat is a floating-point parameter.
	ParamTypeFloat ParamType = "number"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"

	// ParamTypeArray is an array parameter.
	ParamTypeArray ParamType = "array"

	// ParamTypeObject is an object parameter.
	ParamTypeObject ParamType = "object"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`

	// MinLength is the minimum string length (for string type).
	MinLength int `json:"minLength,omitempty"`

	// MaxLength is the maximum string length (for string type).
	MaxLength int `json:"maxLength,omitempty"`

	// Minimum is the minimum value (for numeric types).
	Minimum *float64 `json:"minimum,omitempty"`

	// Maximum is the maximum value (for numeric types).
	Maximum *float64 `json:"maximum,omitempty"`

	// Items defines array item type (for array type).
	Items *ParamDef `json:"items,omitempty"`
}

// Definition describes a tool's interface for the model.
//
// This structure serializes to JSON Schema for model tool calling APIs
// via JSONSchema.
type Definition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category groups the tool by clinical purpose.
	Category Category `json:"category"`

	// SideEffectFree indicates the tool is pure: same inputs, same
	// output, nothing mutated. Only side-effect-free tools may run in
	// parallel within a turn.
	SideEffectFree bool `json:"side_effect_free"`

	// Timeout is the execution timeout (zero uses the executor default).
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns the required parameter names.
func (d *Definition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// JSONSchema renders the parameter schema as a JSON Schema object
// suitable for model tool calling APIs.
func (d *Definition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string

	for name, param := range d.Parameters {
		prop := map[string]any{
			"type":        string(param.Type),
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Minimum != nil {
			prop["minimum"] = *param.Minimum
		}
		if param.Maximum != nil {
			prop["maximum"] = *param.Maximum
		}
		if param.MinLength > 0 {
			prop["minLength"] = param.MinLength
		}
		if param.MaxLength > 0 {
			prop["maxLength"] = param.MaxLength
		}
		if param.Items != nil {
			prop["items"] = map[string]any{"type": string(param.Items.Type)}
		}
		properties[name] = prop

		if param.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Tool defines the interface for executable clinical tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() Category

	// Definition returns the tool's parameter schema.
	Definition() Definition

	// Execute runs the tool with the given parameters.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   params - Input parameters (validated before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the text returned to the model.
	Output string `json:"output"`

	// ErrorCode classifies the failure (UNKNOWN_TOOL, VALIDATION_ERROR,
	// EXECUTION_ERROR, TIMEOUT). Empty on success.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the failure message. Empty on success.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`
}

// Invocation represents one requested tool call.
type Invocation struct {
	// ID uniquely identifies this invocation.
	ID string `json:"id"`

	// ToolCallID is the model-assigned identifier the result must be
	// paired with.
	ToolCallID string `json:"tool_call_id"`

	// ToolName is the tool to invoke.
	ToolName string `json:"tool_name"`

	// Parameters are the input parameters.
	Parameters map[string]any `json:"parameters"`
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`

	// Actual describes what was received.
	Actual string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}
