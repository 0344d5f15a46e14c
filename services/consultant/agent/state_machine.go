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
	"fmt"
	"sync"
)

// StateMachine enforces valid transitions for the consultation loop.
//
// The transition graph:
//
//	IDLE → AWAITING_MODEL             : Consultation started
//	AWAITING_MODEL → EXECUTING_TOOLS  : Model requested tool calls
//	AWAITING_MODEL → COMPLETED        : Model answered in plain text
//	AWAITING_MODEL → FAILED           : Transport error or budget
//	EXECUTING_TOOLS → AWAITING_MODEL  : Results returned, next round
//	EXECUTING_TOOLS → FAILED          : Canceled mid-round
//
// COMPLETED and FAILED are terminal.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// state is the current loop state.
	state LoopState

	// transitions maps (from, to) pairs that are valid.
	transitions map[LoopState]map[LoopState]bool
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		state:       StateIdle,
		transitions: make(map[LoopState]map[LoopState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[LoopState]bool)
	}

	sm.addTransition(StateIdle, StateAwaitingModel)

	sm.addTransition(StateAwaitingModel, StateExecutingTools)
	sm.addTransition(StateAwaitingModel, StateCompleted)
	sm.addTransition(StateAwaitingModel, StateFailed)

	sm.addTransition(StateExecutingTools, StateAwaitingModel)
	sm.addTransition(StateExecutingTools, StateFailed)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to LoopState) {
	sm.transitions[from][to] = true
}

// State returns the current state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) State() LoopState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// CanTransition checks if a transition is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to LoopState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves the machine to a new state.
//
// Outputs:
//
//	error - ErrInvalidTransition if the move is not allowed; the state
//	        is unchanged in that case.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(to LoopState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.transitions[sm.state][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sm.state, to)
	}
	sm.state = to
	return nil
}

// Reset returns the machine to StateIdle for a new consultation.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = StateIdle
}
