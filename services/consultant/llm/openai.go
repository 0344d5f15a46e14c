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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client and StreamingClient over the OpenAI
// chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient creates a client from the environment.
//
// Description:
//
//	Reads OPENAI_API_KEY from the environment, falling back to the
//	container secret at /run/secrets/openai_api_key. OPENAI_MODEL
//	selects the model (default gpt-4o-mini).
//
// Outputs:
//
//	*OpenAIClient - Ready client.
//	error - Non-nil if no API key can be found.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(raw))
		slog.Info("Read the OpenAI API key from container secrets")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: slog.Default(),
	}, nil
}

// Name implements the Client interface.
func (o *OpenAIClient) Name() string {
	return "openai"
}

// Model implements the Client interface.
func (o *OpenAIClient) Model() string {
	return o.model
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	started := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(request, false))
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		StopReason:   convertFinishReason(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(started),
		Model:        resp.Model,
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	o.logger.Debug("OpenAI completion received",
		"stop_reason", out.StopReason,
		"tool_calls", len(out.ToolCalls),
		"duration", out.Duration,
	)
	return out, nil
}

// CompleteStream implements the StreamingClient interface.
func (o *OpenAIClient) CompleteStream(ctx context.Context, request *Request) (<-chan Fragment, error) {
	started := time.Now()

	stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(request, true))
	if err != nil {
		o.logger.Error("OpenAI stream open failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	fragments := make(chan Fragment)
	go func() {
		defer close(fragments)
		defer stream.Close()

		var content strings.Builder
		calls := make(map[int]*ToolCall)
		maxIndex := -1
		finishReason := StopEnd

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				select {
				case fragments <- Fragment{Done: true, Err: fmt.Errorf("OpenAI stream failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = convertFinishReason(choice.FinishReason)
			}

			for _, delta := range choice.Delta.ToolCalls {
				index := 0
				if delta.Index != nil {
					index = *delta.Index
				}
				call, ok := calls[index]
				if !ok {
					call = &ToolCall{}
					calls[index] = call
					if index > maxIndex {
						maxIndex = index
					}
				}
				if delta.ID != "" {
					call.ID = delta.ID
				}
				if delta.Function.Name != "" {
					call.Name = delta.Function.Name
				}
				call.Arguments += delta.Function.Arguments
			}

			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				// Guarded like every other send: once the consumer has
				// given up on its own ctx.Done, nothing will ever
				// receive here, and an unguarded send would leak this
				// goroutine and pin the response body past Close.
				select {
				case fragments <- Fragment{Text: choice.Delta.Content}:
				case <-ctx.Done():
					select {
					case fragments <- Fragment{Done: true, Err: ctx.Err()}:
					default:
					}
					return
				}
			}
		}

		response := &Response{
			Content:    content.String(),
			StopReason: finishReason,
			Duration:   time.Since(started),
			Model:      o.model,
		}
		for i := 0; i <= maxIndex; i++ {
			if call, ok := calls[i]; ok {
				response.ToolCalls = append(response.ToolCalls, *call)
			}
		}
		if response.HasToolCalls() {
			response.StopReason = StopToolUse
		}

		select {
		case fragments <- Fragment{Done: true, Response: response}:
		case <-ctx.Done():
		}
	}()

	return fragments, nil
}

// buildRequest converts a Request to the OpenAI wire format.
func (o *OpenAIClient) buildRequest(request *Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)

	if request.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case "tool":
			for _, result := range msg.ToolResults {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: result.ToolCallID,
					Content:    result.Content,
				})
			}

		case "assistant":
			converted := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			messages = append(messages, converted)

		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   stream,
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	if request.Temperature > 0 {
		req.Temperature = float32(request.Temperature)
	}

	for _, def := range request.Tools {
		def := def
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.JSONSchema(),
			},
		})
	}

	return req
}

// convertFinishReason maps OpenAI finish reasons to stop reasons.
func convertFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls:
		return StopToolUse
	case openai.FinishReasonLength:
		return StopMaxTokens
	default:
		return StopEnd
	}
}
