// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the consultation loop: the alternation between
// asking the model for its next turn and executing the tools it
// requested, until the model answers in plain text or a budget or
// failure ends the conversation.
package agent

import (
	"github.com/AleutianAI/AleutianClinical/services/cdss/explain"
)

// LoopState is the consultation loop's lifecycle state.
type LoopState string

const (
	// StateIdle means no consultation has started.
	StateIdle LoopState = "IDLE"

	// StateAwaitingModel means a model request is in flight.
	StateAwaitingModel LoopState = "AWAITING_MODEL"

	// StateExecutingTools means requested tool calls are running.
	StateExecutingTools LoopState = "EXECUTING_TOOLS"

	// StateCompleted means the model produced its final text.
	StateCompleted LoopState = "COMPLETED"

	// StateFailed means the loop ended without a final answer.
	StateFailed LoopState = "FAILED"
)

// AllStates returns every loop state.
func AllStates() []LoopState {
	return []LoopState{
		StateIdle,
		StateAwaitingModel,
		StateExecutingTools,
		StateCompleted,
		StateFailed,
	}
}

// String returns the string representation of the state.
func (s LoopState) String() string {
	return string(s)
}

// IsTerminal reports whether the loop can never leave this state.
func (s LoopState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureReason classifies why a consultation failed.
type FailureReason string

const (
	// ReasonBudgetExceeded means the round budget ran out before the
	// model produced a final answer.
	ReasonBudgetExceeded FailureReason = "BUDGET_EXCEEDED"

	// ReasonModelTransport means the model call itself failed.
	ReasonModelTransport FailureReason = "MODEL_TRANSPORT_ERROR"

	// ReasonCanceled means the caller canceled the consultation.
	ReasonCanceled FailureReason = "CANCELED"
)

// LoopConfig configures a consultation loop.
type LoopConfig struct {
	// MaxRounds bounds the number of model round trips. A round is one
	// model call plus the tool executions it requested. Zero or
	// negative uses DefaultMaxRounds.
	MaxRounds int

	// SystemPrompt is the persona instructions for the model.
	SystemPrompt string

	// MaxTokens limits each model response.
	MaxTokens int

	// Temperature controls model randomness.
	Temperature float64

	// Parallel allows tool calls within a turn to run concurrently
	// when every requested tool is side-effect free.
	Parallel bool
}

// DefaultMaxRounds bounds a consultation when no budget is configured.
const DefaultMaxRounds = 10

// RunResult is the outcome of one consultation.
type RunResult struct {
	// State is the terminal loop state (COMPLETED or FAILED).
	State LoopState

	// FinalText is the model's answer. Empty unless COMPLETED.
	FinalText string

	// Reason classifies the failure. Empty unless FAILED.
	Reason FailureReason

	// Rounds is the number of completed model round trips.
	Rounds int

	// ToolCalls is the total number of tool executions.
	ToolCalls int

	// Conversation is the full turn history, including the partial
	// history of a failed run.
	Conversation *Conversation

	// Trace is the audit trail recorded during the run.
	Trace []explain.Entry
}

// Failed reports whether the consultation ended without an answer.
func (r *RunResult) Failed() bool {
	return r.State == StateFailed
}
