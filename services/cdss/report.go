// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cdss

import (
	"fmt"
	"strings"
)

// Report renders a clinician-facing markdown summary of a verdict.
//
// Description:
//
//	The report is deterministic for a given verdict: sections appear in
//	fixed order and map iteration goes through sorted keys. It is meant
//	to be embedded in chart notes or shown directly in a terminal.
//
// Outputs:
//
//	string - Markdown text, never empty for a non-nil verdict.
func Report(v *Verdict) string {
	if v == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "## Decision: %s\n\n", statusHeading(v.Status))
	fmt.Fprintf(&b, "Proposed action: **%s**", v.Action.Kind)
	if v.Action.Description != "" {
		fmt.Fprintf(&b, " (%s)", v.Action.Description)
	}
	fmt.Fprintf(&b, " in domain `%s`.\n", v.Domain)

	if v.ShortCircuit {
		b.WriteString("\nEvaluation stopped before any clinical rule was consulted: ")
		b.WriteString("a safety guardrail rejected the input outright.\n")
	}

	if len(v.Violations) > 0 {
		b.WriteString("\n### Guardrails\n\n")
		for _, violation := range v.Violations {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n",
				violation.ReasonCode, violation.Severity, strings.TrimSpace(violation.Message))
		}
	}

	if len(v.FiredRules) > 0 {
		b.WriteString("\n### Applied rules\n\n")
		for _, fired := range v.FiredRules {
			fmt.Fprintf(&b, "- **%s** [%s, %s]: %s", fired.RuleID, fired.Action, fired.Severity, fired.Rationale)
			if fired.EvidenceLevel != "" {
				fmt.Fprintf(&b, " (evidence level %s)", fired.EvidenceLevel)
			}
			b.WriteString("\n")
			for _, ref := range fired.EvidenceRefs {
				fmt.Fprintf(&b, "  - %s\n", ref)
			}
		}
	}

	if len(v.SkippedRules) > 0 {
		b.WriteString("\n### Rules not evaluated\n\n")
		for _, skipped := range v.SkippedRules {
			fmt.Fprintf(&b, "- %s: %s\n", skipped.RuleID, skipped.Reason)
		}
	}

	if v.Status == StatusApprovedWithModification {
		b.WriteString("\n### Action as approved\n\n")
		for _, key := range sortedKeys(v.Action.Parameters) {
			fmt.Fprintf(&b, "- %s: %s\n", key, v.Action.Parameters[key])
		}
		if len(v.Action.Components) > 0 {
			fmt.Fprintf(&b, "- components: %s\n", strings.Join(v.Action.Components, ", "))
		}
	}

	if len(v.Annotations) > 0 {
		b.WriteString("\n### Notes\n\n")
		for _, note := range v.Annotations {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(note))
		}
	}

	return b.String()
}

func statusHeading(s Status) string {
	switch s {
	case StatusApproved:
		return "Approved"
	case StatusApprovedWithModification:
		return "Approved with modification"
	case StatusBlocked:
		return "Blocked"
	default:
		return string(s)
	}
}
