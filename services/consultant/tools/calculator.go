// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// calculatorTool performs standard low vision calculations.
//
// All calculations are pure arithmetic on the inputs, so the tool is
// side-effect free and safe to run in parallel with other pure tools.
type calculatorTool struct{}

// NewCalculatorTool creates the visual_calculator tool.
func NewCalculatorTool() Tool {
	return &calculatorTool{}
}

func (t *calculatorTool) Name() string {
	return "visual_calculator"
}

func (t *calculatorTool) Category() Category {
	return CategoryAssessment
}

func (t *calculatorTool) Definition() Definition {
	minDiopters := 0.25
	return Definition{
		Name: "visual_calculator",
		Description: "Performs low vision calculations: acuity notation conversion, " +
			"required magnification, readable print size, and working distance.",
		Parameters: map[string]ParamDef{
			"calculation": {
				Type:        ParamTypeString,
				Description: "Which calculation to run",
				Required:    true,
				Enum: []any{
					"va_conversion",
					"magnification_power",
					"print_size",
					"working_distance",
				},
			},
			"acuity": {
				Type: ParamTypeString,
				Description: "Visual acuity as Snellen ('6/60', '20/200'), decimal " +
					"('0.1'), or LogMAR ('logmar 1.0'). Required except for " +
					"working_distance.",
				Required: false,
			},
			"diopters": {
				Type:        ParamTypeFloat,
				Description: "Lens power in diopters (working_distance only)",
				Required:    false,
				Minimum:     &minDiopters,
			},
		},
		Category:       CategoryAssessment,
		SideEffectFree: true,
	}
}

func (t *calculatorTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	calculation, _ := params["calculation"].(string)

	switch calculation {
	case "va_conversion":
		acuity, err := requireAcuity(params)
		if err != nil {
			return nil, err
		}
		return &Result{Success: true, Output: describeAcuity(acuity)}, nil

	case "magnification_power":
		acuity, err := requireAcuity(params)
		if err != nil {
			return nil, err
		}
		return &Result{Success: true, Output: describeMagnification(acuity)}, nil

	case "print_size":
		acuity, err := requireAcuity(params)
		if err != nil {
			return nil, err
		}
		return &Result{Success: true, Output: describePrintSize(acuity)}, nil

	case "working_distance":
		diopters, ok := floatParam(params, "diopters")
		if !ok || diopters <= 0 {
			return nil, fmt.Errorf("working_distance requires a positive diopters value")
		}
		return &Result{
			Success: true,
			Output: fmt.Sprintf("A %.2f D lens gives a working distance of %.1f cm.",
				diopters, 100/diopters),
		}, nil

	default:
		return nil, fmt.Errorf("unknown calculation %q", calculation)
	}
}

// parseAcuity converts an acuity string to a decimal acuity value.
//
// Accepted notations:
//
//	"6/60", "20/200"  Snellen fractions
//	"0.1"             decimal acuity
//	"logmar 1.0"      LogMAR
func parseAcuity(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ToLower(raw))

	if rest, ok := strings.CutPrefix(s, "logmar"); ok {
		logmar, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid LogMAR acuity %q", raw)
		}
		return math.Pow(10, -logmar), nil
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		numerator, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		denominator, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || numerator <= 0 || denominator <= 0 {
			return 0, fmt.Errorf("invalid Snellen acuity %q", raw)
		}
		return numerator / denominator, nil
	}

	decimal, err := strconv.ParseFloat(s, 64)
	if err != nil || decimal <= 0 {
		return 0, fmt.Errorf("invalid acuity %q", raw)
	}
	return decimal, nil
}

func requireAcuity(params map[string]any) (float64, error) {
	raw, _ := params["acuity"].(string)
	if raw == "" {
		return 0, fmt.Errorf("this calculation requires an acuity value")
	}
	return parseAcuity(raw)
}

func floatParam(params map[string]any, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// describeAcuity renders the same acuity in every common notation.
func describeAcuity(decimal float64) string {
	logmar := -math.Log10(decimal)
	return fmt.Sprintf(
		"Decimal acuity %.3f, LogMAR %.2f, Snellen 6/%.0f (6 m) or 20/%.0f (20 ft).",
		decimal, logmar, 6/decimal, 20/decimal)
}

// describeMagnification applies the standard 0.3 target acuity heuristic
// for fluent newsprint reading.
func describeMagnification(decimal float64) string {
	magnification := 0.3 / decimal
	if magnification < 1 {
		return "No magnification needed: acuity already meets the 0.3 decimal target for newsprint."
	}
	diopters := magnification * 2.5
	workingDistance := 100 / diopters
	return fmt.Sprintf(
		"Required magnification %.1fx (target 0.3 decimal). Equivalent lens power %.1f D, "+
			"working distance %.1f cm.",
		magnification, diopters, workingDistance)
}

// describePrintSize estimates the smallest comfortably readable print.
func describePrintSize(decimal float64) string {
	readableN := math.Round((0.3 / decimal) * 8)
	if readableN < 8 {
		readableN = 8
	}
	fontPt := math.Round(readableN * 1.5)
	return fmt.Sprintf(
		"Smallest comfortably readable print is approximately N%.0f (about %.0f pt font).",
		readableN, fontPt)
}
