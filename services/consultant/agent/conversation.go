// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"time"

	"github.com/AleutianAI/AleutianClinical/services/consultant/llm"
)

// Turn is one entry in the conversation history.
type Turn struct {
	// Role is "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content,omitempty"`

	// ToolCalls are the calls an assistant turn requested.
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults are the results a tool turn carries, in the same
	// order as the assistant turn's requests.
	ToolResults []llm.ToolCallResult `json:"tool_results,omitempty"`

	// At is when the turn was appended.
	At time.Time `json:"at"`
}

// Conversation is the append-only turn history of one consultation.
//
// A Conversation has a single owner, the running loop, and is not
// synchronized. Callers must not mutate it while a consultation is in
// flight; after the run completes it is safe to read.
type Conversation struct {
	turns []Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.turns = append(c.turns, Turn{
		Role:    "user",
		Content: content,
		At:      time.Now().UTC(),
	})
}

// AddAssistant appends an assistant turn from a model response.
func (c *Conversation) AddAssistant(response *llm.Response) {
	c.turns = append(c.turns, Turn{
		Role:      "assistant",
		Content:   response.Content,
		ToolCalls: response.ToolCalls,
		At:        time.Now().UTC(),
	})
}

// AddToolResults appends a tool turn carrying one result per requested
// call, in request order.
func (c *Conversation) AddToolResults(results []llm.ToolCallResult) {
	c.turns = append(c.turns, Turn{
		Role:        "tool",
		ToolResults: results,
		At:          time.Now().UTC(),
	})
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// LastAssistantText returns the content of the most recent assistant
// turn, or empty if there is none.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == "assistant" {
			return c.turns[i].Content
		}
	}
	return ""
}

// Messages renders the history in the model wire shape.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.turns))
	for i, turn := range c.turns {
		out[i] = llm.Message{
			Role:        turn.Role,
			Content:     turn.Content,
			ToolCalls:   turn.ToolCalls,
			ToolResults: turn.ToolResults,
		}
	}
	return out
}
