// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the model client interface for the consultation loop.
//
// This package defines the interface model providers must implement to
// drive a consultation. Implementations are injected at runtime.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"time"

	"github.com/AleutianAI/AleutianClinical/services/consultant/tools"
)

// Stop reasons reported in Response.StopReason.
const (
	// StopEnd means the model finished its turn with text.
	StopEnd = "end"

	// StopToolUse means the model is requesting tool executions.
	StopToolUse = "tool_use"

	// StopMaxTokens means generation hit the token limit.
	StopMaxTokens = "max_tokens"
)

// Client defines the interface for model interactions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request to the model and returns a response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The model response
	//   error - Non-nil if the request failed
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g. "openai", "mock").
	Name() string

	// Model returns the model being used.
	Model() string
}

// Fragment is one piece of a streamed model turn.
//
// Text fragments arrive first; the final fragment has Done set and
// carries the assembled Response (or Err). No fragments follow Done.
type Fragment struct {
	// Text is the incremental content delta. Empty on the final fragment.
	Text string

	// Done marks the end of the stream.
	Done bool

	// Response is the complete assembled response. Set only when Done.
	Response *Response

	// Err is the stream failure, if any. Set only when Done.
	Err error
}

// StreamingClient is implemented by clients that can stream a turn.
type StreamingClient interface {
	Client

	// CompleteStream sends a request and streams the response.
	//
	// Description:
	//
	//	The returned channel delivers text fragments in order and is
	//	closed after the final Done fragment. Canceling the context
	//	ends the stream at the next fragment boundary.
	//
	// Outputs:
	//   <-chan Fragment - The fragment stream
	//   error - Non-nil if the stream could not be opened
	CompleteStream(ctx context.Context, request *Request) (<-chan Fragment, error)
}

// Request represents a completion request to the model.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Tools defines the tools available this turn.
	Tools []tools.Definition `json:"tools,omitempty"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Role is "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations (assistant messages).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains tool results (tool messages).
	ToolResults []ToolCallResult `json:"tool_results,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the model-assigned identifier for this call.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the tool arguments as JSON.
	Arguments string `json:"arguments"`
}

// ToolCallResult contains the result of one tool call.
type ToolCallResult struct {
	// ToolCallID links back to the tool call.
	ToolCallID string `json:"tool_call_id"`

	// Content is the result content.
	Content string `json:"content"`

	// IsError indicates if this is an error result.
	IsError bool `json:"is_error,omitempty"`
}

// Response represents a model response.
type Response struct {
	// Content is the text response.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the model wants to make, in
	// the order the model requested them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// StopReason indicates why generation stopped.
	StopReason string `json:"stop_reason"`

	// InputTokens is the input token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the output token count.
	OutputTokens int `json:"output_tokens"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
