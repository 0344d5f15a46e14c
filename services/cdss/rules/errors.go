// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import "fmt"

// ConfigError reports a malformed rule or guardrail definition.
//
// A ConfigError during load is fatal to that load: no partially valid set
// is ever installed. The engine also raises ConfigError at evaluation time
// when two fired modify-rules conflict, because the conflict lives in the
// configuration, not in the patient data.
type ConfigError struct {
	// Source identifies where the bad definition came from (file path,
	// "embedded", or a rule/domain identifier).
	Source string

	// Detail describes the specific problem.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("rule config error (%s): %s: %v", e.Source, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("rule config error (%s): %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("rule config error (%s): %s", e.Source, e.Detail)
	}
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
