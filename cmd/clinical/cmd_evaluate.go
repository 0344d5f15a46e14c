// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianClinical/pkg/logging"
	"github.com/AleutianAI/AleutianClinical/services/cdss"
	"github.com/AleutianAI/AleutianClinical/services/cdss/explain"
	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
)

// caseFile is the on-disk shape of an offline evaluation case.
type caseFile struct {
	Domain     string         `yaml:"domain"`
	Attributes map[string]any `yaml:"attributes"`
	Action     struct {
		Kind        string            `yaml:"kind"`
		Description string            `yaml:"description"`
		Parameters  map[string]string `yaml:"parameters"`
		Components  []string          `yaml:"components"`
	} `yaml:"action"`
}

func runEvaluate(cmd *cobra.Command, args []string) {
	path := args[0]

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading case file: %v", err)
	}

	var c caseFile
	if err := yaml.Unmarshal(raw, &c); err != nil {
		log.Fatalf("Error parsing case file %s: %v", path, err)
	}
	if c.Domain == "" {
		log.Fatalf("Case file %s has no domain", path)
	}
	if c.Action.Kind == "" {
		log.Fatalf("Case file %s has no action kind", path)
	}

	logger := newLogger("clinical-evaluate")
	defer logger.Close()

	store, err := newRuleStore()
	if err != nil {
		log.Fatalf("Error loading rules: %v", err)
	}
	guards, err := guardrails.NewEvaluator()
	if err != nil {
		log.Fatalf("Error loading guardrails: %v", err)
	}

	tracer := explain.NewTracer()
	engine := cdss.NewEngine(store, guards,
		cdss.WithTracer(tracer),
		cdss.WithLogger(logger.Logger),
	)

	verdict, err := engine.Evaluate(context.Background(),
		&cdss.ClinicalContext{Domain: c.Domain, Attributes: c.Attributes},
		&cdss.ProposedAction{
			Kind:        c.Action.Kind,
			Description: c.Action.Description,
			Parameters:  c.Action.Parameters,
			Components:  c.Action.Components,
		},
	)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	fmt.Println(cdss.Report(verdict))

	if showTrace {
		printTrace(tracer.Entries())
	}

	if verdict.Blocked() {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags.
func newLogger(service string) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: service,
	})
}

// printTrace dumps audit trail entries as indented JSON.
func printTrace(entries []explain.Entry) {
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("Error rendering trace: %v", err)
		return
	}
	fmt.Printf("\nAudit trail:\n%s\n", out)
}
