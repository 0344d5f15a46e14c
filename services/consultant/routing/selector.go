// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing picks the consultation persona for an incoming
// message. Each persona narrows the system instructions and the tool
// categories offered to the model.
package routing

import (
	"strings"

	"github.com/AleutianAI/AleutianClinical/services/consultant/tools"
)

// Capability identifies a consultation persona.
type Capability string

const (
	// CapabilityAssessment handles measurement and evaluation requests.
	CapabilityAssessment Capability = "assessment"

	// CapabilityTreatment handles planning and intervention requests.
	CapabilityTreatment Capability = "treatment"

	// CapabilityGeneral handles everything else.
	CapabilityGeneral Capability = "general"
)

// Persona describes how a capability consults.
type Persona struct {
	// Capability is the persona's identity.
	Capability Capability

	// SystemInstructions is appended to the base system prompt.
	SystemInstructions string

	// Categories limits the tool categories offered to the model. Nil
	// means every registered tool.
	Categories []tools.Category
}

// selectionThreshold is the minimum keyword score before a specialist
// persona wins over the general one.
const selectionThreshold = 2

// Selector routes messages to personas by keyword scoring.
//
// Thread Safety:
//
//	Selector is immutable after construction and safe for concurrent
//	use.
type Selector struct {
	assessmentKeywords []string
	treatmentKeywords  []string
	personas           map[Capability]Persona
}

// NewSelector creates a selector with the default personas.
func NewSelector() *Selector {
	return &Selector{
		assessmentKeywords: []string{
			"assess", "evaluate", "examine", "measure", "test", "score",
			"rom", "mmt", "berg", "fim", "barthel", "vas", "tug", "6mwt",
			"bcea", "mnread", "phq", "gad", "mmse", "ashworth",
			"acuity", "balance", "strength", "pain level", "range of motion",
		},
		treatmentKeywords: []string{
			"treatment", "plan", "exercise", "intervention", "rehab",
			"therapy", "session", "program", "protocol", "regimen",
			"home program", "goal", "goals", "smart goal",
			"prescribe", "progression", "mobilization",
		},
		personas: map[Capability]Persona{
			CapabilityAssessment: {
				Capability: CapabilityAssessment,
				SystemInstructions: "You are the assessment specialist. Quantify function " +
					"with standardized measures before recommending anything, and state " +
					"which instrument each number comes from.",
				Categories: []tools.Category{
					tools.CategoryAssessment,
					tools.CategoryReasoning,
				},
			},
			CapabilityTreatment: {
				Capability: CapabilityTreatment,
				SystemInstructions: "You are the treatment planner. Propose concrete " +
					"interventions, check each one against decision support before " +
					"presenting it, and flag anything that was modified or blocked.",
				Categories: []tools.Category{
					tools.CategoryTreatment,
					tools.CategoryReasoning,
				},
			},
			CapabilityGeneral: {
				Capability: CapabilityGeneral,
				SystemInstructions: "You are the general consultant. Handle broad " +
					"questions and conversation, and hand specifics to the tools.",
			},
		},
	}
}

// Select returns the capability that should handle the message.
//
// Description:
//
//	Each specialist's keywords are counted against the lowercased
//	message. A specialist wins only with a strictly higher score than
//	the other and at least the selection threshold; ties and weak
//	matches fall back to the general persona.
func (s *Selector) Select(message string) Capability {
	lower := strings.ToLower(message)

	assessmentScore := countMatches(lower, s.assessmentKeywords)
	treatmentScore := countMatches(lower, s.treatmentKeywords)

	switch {
	case assessmentScore > treatmentScore && assessmentScore >= selectionThreshold:
		return CapabilityAssessment
	case treatmentScore > assessmentScore && treatmentScore >= selectionThreshold:
		return CapabilityTreatment
	default:
		return CapabilityGeneral
	}
}

// Persona returns the persona for a capability, falling back to the
// general persona for unknown capabilities.
func (s *Selector) Persona(capability Capability) Persona {
	if persona, ok := s.personas[capability]; ok {
		return persona
	}
	return s.personas[CapabilityGeneral]
}

// PersonaFor selects and resolves the persona for a message in one
// step.
func (s *Selector) PersonaFor(message string) Persona {
	return s.Persona(s.Select(message))
}

// ToolsFor returns the registry tools the persona may use. A persona
// with no category restriction gets every registered tool (nil). A
// restricted persona always gets a non-nil slice, so a restriction
// matching nothing offers zero tools rather than widening to the full
// registry.
func ToolsFor(persona Persona, registry *tools.Registry) []tools.Tool {
	if len(persona.Categories) == 0 {
		return nil
	}
	selected := registry.GetByCategories(persona.Categories...)
	if selected == nil {
		selected = []tools.Tool{}
	}
	return selected
}

func countMatches(lowerMessage string, keywords []string) int {
	score := 0
	for _, keyword := range keywords {
		if strings.Contains(lowerMessage, keyword) {
			score++
		}
	}
	return score
}
