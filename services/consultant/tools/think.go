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

import "context"

// thinkTool gives the model a place to reason before acting. The thought
// is echoed back unchanged; its value is that it lands in the audit trail
// alongside the decisions it led to.
type thinkTool struct{}

// NewThinkTool creates the think tool.
func NewThinkTool() Tool {
	return &thinkTool{}
}

func (t *thinkTool) Name() string {
	return "think"
}

func (t *thinkTool) Category() Category {
	return CategoryReasoning
}

func (t *thinkTool) Definition() Definition {
	return Definition{
		Name: "think",
		Description: "Records a step of clinical reasoning before acting. Use this " +
			"to work through differential considerations or to plan which tools " +
			"to call next.",
		Parameters: map[string]ParamDef{
			"thought": {
				Type:        ParamTypeString,
				Description: "The reasoning step",
				Required:    true,
				MinLength:   1,
			},
		},
		Category:       CategoryReasoning,
		SideEffectFree: true,
	}
}

func (t *thinkTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	thought, _ := params["thought"].(string)
	return &Result{Success: true, Output: thought}, nil
}
