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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	rulesPath  string // CLI override for the rule definitions file
	watchRules bool   // Reload the rules file on change during chat
	showTrace  bool   // Print the audit trail after a run
	maxRounds  int    // Round budget for a consultation
	logDir     string // Directory for file logging
	verbose    bool   // Debug-level logging

	rootCmd = &cobra.Command{
		Use:   "clinical",
		Short: "A cli for the clinical decision support consultant",
		Long: `Clinical runs a tool-using rehabilitation consultant whose
				treatment suggestions are checked against a guardrailed rule
				engine before they reach the user.`,
	}

	// --- Rules ---
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Manage clinical rule definitions",
	}
	rulesValidateCmd = &cobra.Command{
		Use:   "validate [rules.yaml]",
		Short: "Parse a rule definitions file and report problems",
		Args:  cobra.ExactArgs(1),
		Run:   runRulesValidate, // Defined in cmd_rules.go
	}
	rulesShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the active rule set, domain by domain",
		Run:   runRulesShow, // Defined in cmd_rules.go
	}

	// --- Evaluate ---
	evaluateCmd = &cobra.Command{
		Use:   "evaluate [case.yaml]",
		Short: "Evaluate a proposed clinical action offline and print the verdict",
		Args:  cobra.ExactArgs(1),
		Run:   runEvaluate, // Defined in cmd_evaluate.go
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive consultation session",
		Run:   runChat, // Defined in cmd_chat.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "",
		"Path to a rule definitions file (default: embedded rules)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for file logging (default: stderr only)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Enable debug logging")

	evaluateCmd.Flags().BoolVar(&showTrace, "trace", false,
		"Print the audit trail as JSON after the verdict")

	chatCmd.Flags().BoolVar(&watchRules, "watch", false,
		"Reload the rules file when it changes (requires --rules)")
	chatCmd.Flags().IntVar(&maxRounds, "max-rounds", 0,
		"Round budget per consultation (default: 10)")
	chatCmd.Flags().BoolVar(&showTrace, "trace", false,
		"Print the audit trail as JSON after each answer")

	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesShowCmd)

	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(chatCmd)
}
