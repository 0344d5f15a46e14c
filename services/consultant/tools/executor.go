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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTool indicates the requested tool is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Error codes carried in Result.ErrorCode.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeTimeout         = "TIMEOUT"
)

// ExecutorOptions configures the tool executor.
type ExecutorOptions struct {
	// DefaultTimeout bounds a single tool execution when the tool's
	// definition declares none.
	DefaultTimeout time.Duration
}

// DefaultExecutorOptions returns sensible defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 30 * time.Second,
	}
}

// Executor runs tool invocations with validation and panic containment.
//
// # Description
//
// Execute never returns an error: every failure mode (unknown tool, bad
// parameters, tool error, panic, timeout) becomes a failed Result so the
// conversation always gets exactly one result per requested call.
//
// # Thread Safety
//
// Executor is safe for concurrent use. Multiple tool executions can run
// simultaneously.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
	logger   *slog.Logger
}

// NewExecutor creates a tool executor over the registry.
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		options = *opts
	}
	return &Executor{
		registry: registry,
		options:  options,
		logger:   slog.Default(),
	}
}

// Execute runs one tool invocation.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	invocation - The call to execute. A missing ID is assigned.
//
// Outputs:
//
//	*Result - Always non-nil. Failed calls carry ErrorCode and Error.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, invocation *Invocation) *Result {
	if invocation.ID == "" {
		invocation.ID = uuid.NewString()
	}

	logger := e.logger.With(
		"tool", invocation.ToolName,
		"invocation_id", invocation.ID,
	)

	tool, ok := e.registry.Get(invocation.ToolName)
	if !ok {
		logger.Warn("tool not found")
		return &Result{
			Success:   false,
			ErrorCode: CodeUnknownTool,
			Error:     fmt.Sprintf("%v: %s", ErrUnknownTool, invocation.ToolName),
		}
	}

	def := tool.Definition()
	if err := validateParams(&def, invocation.Parameters); err != nil {
		logger.Warn("parameter validation failed", "error", err)
		return &Result{
			Success:   false,
			ErrorCode: CodeValidationError,
			Error:     err.Error(),
		}
	}

	timeout := e.options.DefaultTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	result, err := e.run(ctx, tool, invocation.Parameters)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("tool execution timed out", "timeout", timeout)
			return &Result{
				Success:   false,
				ErrorCode: CodeTimeout,
				Error:     fmt.Sprintf("%s timed out after %v", invocation.ToolName, timeout),
				Duration:  elapsed,
			}
		}
		logger.Error("tool execution failed", "error", err)
		return &Result{
			Success:   false,
			ErrorCode: CodeExecutionError,
			Error:     err.Error(),
			Duration:  elapsed,
		}
	}

	result.Duration = elapsed
	logger.Debug("tool executed",
		"success", result.Success,
		"duration", result.Duration,
	)
	return result
}

// run calls the tool with panic containment.
func (e *Executor) run(ctx context.Context, tool Tool, params map[string]any) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	result, err = tool.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("tool returned no result")
	}
	return result, nil
}

// validateParams validates parameters against a tool definition.
func validateParams(def *Definition, params map[string]any) error {
	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "unknown parameter",
			}
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single parameter value.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{
				Parameter: name,
				Message:   "required parameter is nil",
			}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		str, ok := value.(string)
		if !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.MinLength > 0 && len(str) < def.MinLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at least %d", def.MinLength),
			}
		}
		if def.MaxLength > 0 && len(str) > def.MaxLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at most %d", def.MaxLength),
			}
		}

	case ParamTypeInt, ParamTypeFloat:
		// JSON unmarshals every number as float64
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected number",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}
		if def.Maximum != nil && num > *def.Maximum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at most %v", *def.Maximum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeArray:
		if _, ok := value.([]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected array",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected object",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	if len(def.Enum) > 0 {
		matched := false
		for _, allowed := range def.Enum {
			if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
				matched = true
				break
			}
		}
		if !matched {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be one of %v", def.Enum),
				Actual:    fmt.Sprintf("%v", value),
			}
		}
	}

	return nil
}
