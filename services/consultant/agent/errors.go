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

import "errors"

var (
	// ErrBudgetExceeded indicates the round budget ran out before the
	// model produced a final answer.
	ErrBudgetExceeded = errors.New("round budget exceeded")

	// ErrModelTransport indicates the model call failed.
	ErrModelTransport = errors.New("model transport error")

	// ErrEmptyPrompt indicates Run was called with no user message.
	ErrEmptyPrompt = errors.New("empty user message")

	// ErrLoopInProgress indicates the loop is already running a
	// consultation.
	ErrLoopInProgress = errors.New("consultation already in progress")

	// ErrInvalidTransition indicates an invalid loop state transition.
	ErrInvalidTransition = errors.New("invalid state transition")
)
