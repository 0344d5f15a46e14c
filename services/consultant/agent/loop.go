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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianClinical/services/cdss/explain"
	"github.com/AleutianAI/AleutianClinical/services/consultant/llm"
	"github.com/AleutianAI/AleutianClinical/services/consultant/tools"
)

// Loop drives one consultation: model turns alternating with tool
// execution until the model answers in plain text.
//
// # Round budget
//
// A round is one model call plus the tool executions it requested. The
// budget is checked before every model call; when it is exhausted the
// run fails with ReasonBudgetExceeded and the partial conversation and
// trace are returned.
//
// # Tool results
//
// Every tool call the model requests gets exactly one result, in request
// order, even when the tool is unknown, its arguments are malformed, or
// it panics. Failures become error results the model can react to; they
// never abort the round.
//
// # Thread Safety
//
// A Loop runs one consultation at a time. Run and RunStream return
// ErrLoopInProgress when called concurrently.
type Loop struct {
	client   llm.Client
	registry *tools.Registry
	executor *tools.Executor
	config   LoopConfig
	tracer   *explain.Tracer
	logger   *slog.Logger
	sm       *StateMachine
	selected []tools.Tool

	running atomic.Bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTracer attaches an audit trail to the loop.
func WithTracer(tracer *explain.Tracer) LoopOption {
	return func(l *Loop) { l.tracer = tracer }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// WithTools restricts the tools offered to the model. By default every
// registered tool is offered.
func WithTools(selected []tools.Tool) LoopOption {
	return func(l *Loop) { l.selected = selected }
}

// NewLoop creates a consultation loop.
//
// Inputs:
//
//	client - The model client.
//	registry - The tool registry.
//	executor - The tool executor.
//	config - Loop configuration.
//	opts - Optional settings.
func NewLoop(client llm.Client, registry *tools.Registry, executor *tools.Executor, config LoopConfig, opts ...LoopOption) *Loop {
	if config.MaxRounds <= 0 {
		config.MaxRounds = DefaultMaxRounds
	}

	l := &Loop{
		client:   client,
		registry: registry,
		executor: executor,
		config:   config,
		tracer:   explain.NewTracer(),
		logger:   slog.Default(),
		sm:       NewStateMachine(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() LoopState {
	return l.sm.State()
}

// Run executes one consultation to completion.
//
// Inputs:
//
//	ctx - Cancels the consultation between model fragments and tool
//	      executions.
//	userMessage - The user's opening message.
//
// Outputs:
//
//	*RunResult - Terminal state plus conversation and trace. Non-nil
//	             even on failure, so callers always get the partial
//	             history.
//	error - ErrEmptyPrompt or ErrLoopInProgress for unusable calls;
//	        nil otherwise. Model and budget failures are reported in
//	        the RunResult, not as errors.
func (l *Loop) Run(ctx context.Context, userMessage string) (*RunResult, error) {
	return l.run(ctx, nil, userMessage, nil)
}

// RunStream executes one consultation, streaming assistant text.
//
// Description:
//
//	Text fragments of every assistant turn are sent to the fragments
//	channel in order. The channel is closed when the run ends. If the
//	client does not implement StreamingClient the run proceeds
//	unstreamed and each turn's text arrives as one fragment.
//
//	Cancellation takes effect at fragment boundaries: a canceled turn
//	is discarded whole, never recorded partially.
func (l *Loop) RunStream(ctx context.Context, userMessage string, fragments chan<- string) (*RunResult, error) {
	defer close(fragments)
	return l.run(ctx, nil, userMessage, fragments)
}

// RunStreamFrom is RunStream resuming an earlier conversation, for
// multi-turn sessions. A nil conversation starts fresh.
func (l *Loop) RunStreamFrom(ctx context.Context, conv *Conversation, userMessage string, fragments chan<- string) (*RunResult, error) {
	defer close(fragments)
	return l.run(ctx, conv, userMessage, fragments)
}

// run is the shared loop body.
func (l *Loop) run(ctx context.Context, conv *Conversation, userMessage string, fragments chan<- string) (*RunResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyPrompt
	}
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrLoopInProgress
	}
	defer l.running.Store(false)

	l.sm.Reset()
	if conv == nil {
		conv = NewConversation()
	}
	conv.AddUser(userMessage)

	rounds := 0
	toolCalls := 0

	fail := func(reason FailureReason) (*RunResult, error) {
		// Both live states may transition to FAILED.
		_ = l.sm.Transition(StateFailed)
		l.logger.Warn("consultation failed",
			"reason", reason,
			"rounds", rounds,
			"tool_calls", toolCalls,
		)
		return &RunResult{
			State:        StateFailed,
			Reason:       reason,
			Rounds:       rounds,
			ToolCalls:    toolCalls,
			Conversation: conv,
			Trace:        l.tracer.Entries(),
		}, nil
	}

	for {
		if rounds >= l.config.MaxRounds {
			l.logger.Warn("round budget exhausted", "max_rounds", l.config.MaxRounds)
			return fail(ReasonBudgetExceeded)
		}

		if err := l.sm.Transition(StateAwaitingModel); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return fail(ReasonCanceled)
		}

		response, err := l.completeTurn(ctx, conv, fragments)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return fail(ReasonCanceled)
			}
			l.logger.Error("model call failed", "error", err)
			l.tracer.Record(explain.KindModelTurn, "model call failed", map[string]any{
				"round": rounds + 1,
				"error": err.Error(),
			})
			return fail(ReasonModelTransport)
		}

		conv.AddAssistant(response)
		rounds++

		l.tracer.Record(explain.KindModelTurn, "model turn completed", map[string]any{
			"round":       rounds,
			"stop_reason": response.StopReason,
			"tool_calls":  len(response.ToolCalls),
		})

		if !response.HasToolCalls() {
			if err := l.sm.Transition(StateCompleted); err != nil {
				return nil, err
			}
			l.logger.Info("consultation completed",
				"rounds", rounds,
				"tool_calls", toolCalls,
			)
			return &RunResult{
				State:        StateCompleted,
				FinalText:    response.Content,
				Rounds:       rounds,
				ToolCalls:    toolCalls,
				Conversation: conv,
				Trace:        l.tracer.Entries(),
			}, nil
		}

		if err := l.sm.Transition(StateExecutingTools); err != nil {
			return nil, err
		}

		results := l.executeTools(ctx, response.ToolCalls)
		toolCalls += len(results)
		conv.AddToolResults(results)

		if ctx.Err() != nil {
			return fail(ReasonCanceled)
		}
	}
}

// completeTurn performs one model call, streaming when possible.
func (l *Loop) completeTurn(ctx context.Context, conv *Conversation, fragments chan<- string) (*llm.Response, error) {
	request := &llm.Request{
		SystemPrompt: l.config.SystemPrompt,
		Messages:     conv.Messages(),
		Tools:        l.offeredTools(),
		MaxTokens:    l.config.MaxTokens,
		Temperature:  l.config.Temperature,
	}

	if fragments == nil {
		response, err := l.client.Complete(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelTransport, err)
		}
		return response, nil
	}

	streamer, ok := l.client.(llm.StreamingClient)
	if !ok {
		response, err := l.client.Complete(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelTransport, err)
		}
		if response.Content != "" {
			fragments <- response.Content
		}
		return response, nil
	}

	stream, err := streamer.CompleteStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelTransport, err)
	}

	for fragment := range stream {
		if fragment.Done {
			if fragment.Err != nil {
				if errors.Is(fragment.Err, context.Canceled) {
					return nil, fragment.Err
				}
				return nil, fmt.Errorf("%w: %v", ErrModelTransport, fragment.Err)
			}
			return fragment.Response, nil
		}

		select {
		case fragments <- fragment.Text:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: stream ended without a final response", ErrModelTransport)
}

// offeredTools returns the definitions presented to the model.
func (l *Loop) offeredTools() []tools.Definition {
	if l.selected != nil {
		return tools.DefinitionsFor(l.selected)
	}
	return l.registry.Definitions()
}

// executeTools runs the requested calls and returns one result per call
// in request order.
//
// Calls run in parallel only when the loop allows it and every requested
// tool is known and side-effect free; otherwise they run sequentially in
// request order.
func (l *Loop) executeTools(ctx context.Context, calls []llm.ToolCall) []llm.ToolCallResult {
	results := make([]llm.ToolCallResult, len(calls))

	runOne := func(i int) {
		results[i] = l.executeCall(ctx, calls[i])
	}

	if l.config.Parallel && len(calls) > 1 && l.allSideEffectFree(calls) {
		g, gctx := errgroup.WithContext(ctx)
		for i := range calls {
			i := i
			g.Go(func() error {
				results[i] = l.executeCall(gctx, calls[i])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range calls {
			runOne(i)
		}
	}

	// Trace in request order regardless of execution order.
	for i, call := range calls {
		l.tracer.Record(explain.KindToolCall, fmt.Sprintf("tool %s executed", call.Name), map[string]any{
			"tool_call_id": call.ID,
			"tool":         call.Name,
			"is_error":     results[i].IsError,
		})
	}

	return results
}

// allSideEffectFree reports whether every requested tool is registered
// and declared side-effect free.
func (l *Loop) allSideEffectFree(calls []llm.ToolCall) bool {
	for _, call := range calls {
		tool, ok := l.registry.Get(call.Name)
		if !ok {
			return false
		}
		if !tool.Definition().SideEffectFree {
			return false
		}
	}
	return true
}

// executeCall runs one tool call and converts it to a wire result.
func (l *Loop) executeCall(ctx context.Context, call llm.ToolCall) llm.ToolCallResult {
	params, err := decodeArguments(call.Arguments)
	if err != nil {
		l.logger.Warn("malformed tool arguments", "tool", call.Name, "error", err)
		return llm.ToolCallResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("%s: malformed arguments: %v", tools.CodeValidationError, err),
			IsError:    true,
		}
	}

	result := l.executor.Execute(ctx, &tools.Invocation{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Parameters: params,
	})

	if !result.Success {
		return llm.ToolCallResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("%s: %s", result.ErrorCode, result.Error),
			IsError:    true,
		}
	}
	return llm.ToolCallResult{
		ToolCallID: call.ID,
		Content:    result.Output,
	}
}

// decodeArguments parses the model's JSON argument payload.
func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, err
	}
	return params, nil
}
