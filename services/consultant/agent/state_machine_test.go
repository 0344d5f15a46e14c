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
	"errors"
	"sync"
	"testing"
)

func TestStateMachine_ValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	validTransitions := []struct {
		from LoopState
		to   LoopState
	}{
		// IDLE transitions
		{StateIdle, StateAwaitingModel},

		// AWAITING_MODEL transitions
		{StateAwaitingModel, StateExecutingTools},
		{StateAwaitingModel, StateCompleted},
		{StateAwaitingModel, StateFailed},

		// EXECUTING_TOOLS transitions
		{StateExecutingTools, StateAwaitingModel},
		{StateExecutingTools, StateFailed},
	}

	for _, tt := range validTransitions {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if !sm.CanTransition(tt.from, tt.to) {
				t.Errorf("expected transition %s -> %s to be valid", tt.from, tt.to)
			}
		})
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	sm := NewStateMachine()

	invalidTransitions := []struct {
		from LoopState
		to   LoopState
	}{
		// Terminal states have no outgoing transitions
		{StateCompleted, StateIdle},
		{StateCompleted, StateAwaitingModel},
		{StateCompleted, StateFailed},
		{StateFailed, StateIdle},
		{StateFailed, StateAwaitingModel},
		{StateFailed, StateCompleted},

		// IDLE can only start a consultation
		{StateIdle, StateExecutingTools},
		{StateIdle, StateCompleted},
		{StateIdle, StateFailed},

		// A model turn must separate tool phases from completion
		{StateExecutingTools, StateCompleted},
		{StateAwaitingModel, StateIdle},
	}

	for _, tt := range invalidTransitions {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if sm.CanTransition(tt.from, tt.to) {
				t.Errorf("expected transition %s -> %s to be invalid", tt.from, tt.to)
			}
		})
	}
}

func TestStateMachine_Transition(t *testing.T) {
	sm := NewStateMachine()

	if got := sm.State(); got != StateIdle {
		t.Fatalf("expected initial state %s, got %s", StateIdle, got)
	}

	path := []LoopState{
		StateAwaitingModel,
		StateExecutingTools,
		StateAwaitingModel,
		StateCompleted,
	}
	for _, next := range path {
		if err := sm.Transition(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
		if got := sm.State(); got != next {
			t.Fatalf("expected state %s, got %s", next, got)
		}
	}

	err := sm.Transition(StateAwaitingModel)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition leaving terminal state, got %v", err)
	}
	if got := sm.State(); got != StateCompleted {
		t.Errorf("failed transition must not change state, got %s", got)
	}
}

func TestStateMachine_Reset(t *testing.T) {
	sm := NewStateMachine()

	if err := sm.Transition(StateAwaitingModel); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := sm.Transition(StateFailed); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	sm.Reset()
	if got := sm.State(); got != StateIdle {
		t.Fatalf("expected %s after reset, got %s", StateIdle, got)
	}
	if err := sm.Transition(StateAwaitingModel); err != nil {
		t.Errorf("expected a fresh consultation to start after reset: %v", err)
	}
}

func TestStateMachine_IsTerminal(t *testing.T) {
	for _, state := range AllStates() {
		wantTerminal := state == StateCompleted || state == StateFailed
		if got := state.IsTerminal(); got != wantTerminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", state, got, wantTerminal)
		}
	}
}

func TestStateMachine_ConcurrentAccess(t *testing.T) {
	sm := NewStateMachine()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = sm.State()
				_ = sm.CanTransition(StateIdle, StateAwaitingModel)
			}
		}()
	}
	wg.Wait()
}
