// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement carries the clinical rule definitions that ship
// compiled into the binary. The embedded set is the fallback when no
// rule file is configured, so a deployment always has a usable set.
package enforcement

import _ "embed"

// DefaultRuleDefinitions is the embedded YAML rule set.
//
//go:embed default_rules.yaml
var DefaultRuleDefinitions []byte

// DefaultGuardrailDefinitions is the embedded YAML guardrail set.
//
//go:embed default_guardrails.yaml
var DefaultGuardrailDefinitions []byte
