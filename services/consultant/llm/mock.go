// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockClient is a mock model client for testing.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.RWMutex

	// name is the provider name.
	name string

	// model is the model name.
	model string

	// responses are queued responses to return.
	responses []*Response

	// defaultResponse is returned when no queued responses remain.
	defaultResponse *Response

	// calls records all calls made to Complete.
	calls []CompletionCall

	// responseFunc allows dynamic response generation.
	responseFunc func(*Request) (*Response, error)

	// delay adds artificial latency to responses.
	delay time.Duration

	// errorToReturn causes Complete to return this error.
	errorToReturn error

	// streamChunkSize controls fragment size in CompleteStream.
	streamChunkSize int
}

// CompletionCall records a call to Complete.
type CompletionCall struct {
	Request   *Request
	Timestamp time.Time
}

// NewMockClient creates a new mock model client.
func NewMockClient() *MockClient {
	return &MockClient{
		name:  "mock",
		model: "mock-model",
		defaultResponse: &Response{
			Content:      "Mock response",
			StopReason:   StopEnd,
			InputTokens:  50,
			OutputTokens: 50,
		},
		calls:           make([]CompletionCall, 0),
		streamChunkSize: 8,
	}
}

// WithName sets the provider name.
func (c *MockClient) WithName(name string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	return c
}

// WithModel sets the model name.
func (c *MockClient) WithModel(model string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	return c
}

// WithDelay adds artificial latency.
func (c *MockClient) WithDelay(d time.Duration) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return c
}

// WithError configures the client to return an error.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// WithResponseFunc sets a dynamic response function.
func (c *MockClient) WithResponseFunc(f func(*Request) (*Response, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// QueueResponse adds a response to the queue.
func (c *MockClient) QueueResponse(response *Response) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

// QueueToolCall queues a response that invokes one tool.
func (c *MockClient) QueueToolCall(toolName string, arguments map[string]any) *MockClient {
	argsJSON, _ := json.Marshal(arguments)

	c.mu.Lock()
	id := fmt.Sprintf("call_%d", len(c.responses))
	c.mu.Unlock()

	return c.QueueResponse(&Response{
		StopReason: StopToolUse,
		ToolCalls: []ToolCall{{
			ID:        id,
			Name:      toolName,
			Arguments: string(argsJSON),
		}},
		InputTokens:  50,
		OutputTokens: 50,
	})
}

// QueueToolCalls queues a response requesting several tools in one turn.
func (c *MockClient) QueueToolCalls(calls ...ToolCall) *MockClient {
	return c.QueueResponse(&Response{
		StopReason:   StopToolUse,
		ToolCalls:    calls,
		InputTokens:  50,
		OutputTokens: 50,
	})
}

// QueueFinalResponse queues a final response with no tool calls.
func (c *MockClient) QueueFinalResponse(content string) *MockClient {
	return c.QueueResponse(&Response{
		Content:      content,
		StopReason:   StopEnd,
		InputTokens:  50,
		OutputTokens: 50 + len(content)/4,
	})
}

// Complete implements the Client interface.
func (c *MockClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CompletionCall{
		Request:   request,
		Timestamp: time.Now(),
	})

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.errorToReturn != nil {
		return nil, c.errorToReturn
	}

	if c.responseFunc != nil {
		return c.responseFunc(request)
	}

	if len(c.responses) > 0 {
		response := c.responses[0]
		c.responses = c.responses[1:]
		response.Duration = c.delay
		response.Model = c.model
		return response, nil
	}

	response := *c.defaultResponse
	response.Duration = c.delay
	response.Model = c.model
	return &response, nil
}

// CompleteStream implements the StreamingClient interface.
//
// The next response is split into fixed-size text fragments followed by
// a Done fragment carrying the assembled response, mirroring how a real
// provider streams a turn.
func (c *MockClient) CompleteStream(ctx context.Context, request *Request) (<-chan Fragment, error) {
	response, err := c.Complete(ctx, request)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	chunkSize := c.streamChunkSize
	c.mu.RUnlock()
	if chunkSize <= 0 {
		chunkSize = 8
	}

	fragments := make(chan Fragment)
	go func() {
		defer close(fragments)

		// Every send is guarded: a consumer that bailed out on its own
		// ctx.Done never receives again, and an unguarded send would
		// pin this goroutine forever. Closing the channel is the
		// end-of-stream signal either way.
		content := response.Content
		for start := 0; start < len(content); start += chunkSize {
			end := start + chunkSize
			if end > len(content) {
				end = len(content)
			}
			select {
			case fragments <- Fragment{Text: content[start:end]}:
			case <-ctx.Done():
				select {
				case fragments <- Fragment{Done: true, Err: ctx.Err()}:
				default:
				}
				return
			}
		}

		select {
		case fragments <- Fragment{Done: true, Response: response}:
		case <-ctx.Done():
		}
	}()

	return fragments, nil
}

// Name implements the Client interface.
func (c *MockClient) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Model implements the Client interface.
func (c *MockClient) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// GetCalls returns all recorded calls.
func (c *MockClient) GetCalls() []CompletionCall {
	c.mu.RLock()
	defer c.mu.RUnlock()

	calls := make([]CompletionCall, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// CallCount returns the number of calls made.
func (c *MockClient) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.calls)
}

// LastRequest returns the most recent request.
func (c *MockClient) LastRequest() *Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1].Request
}

// Reset clears all state.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responses = nil
	c.calls = make([]CompletionCall, 0)
	c.errorToReturn = nil
	c.responseFunc = nil
}

// RequestedToolNames extracts tool names from a recorded request's tool
// definitions, for assertions about what the model was offered.
func RequestedToolNames(request *Request) []string {
	if request == nil {
		return nil
	}
	names := make([]string, len(request.Tools))
	for i, def := range request.Tools {
		names[i] = def.Name
	}
	return names
}

// JoinFragments collects a fragment stream into the final text and
// response, for tests.
func JoinFragments(fragments <-chan Fragment) (string, *Response, error) {
	var text strings.Builder
	for fragment := range fragments {
		if fragment.Done {
			return text.String(), fragment.Response, fragment.Err
		}
		text.WriteString(fragment.Text)
	}
	return text.String(), nil, nil
}
