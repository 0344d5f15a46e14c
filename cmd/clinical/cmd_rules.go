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
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
)

func runRulesValidate(cmd *cobra.Command, args []string) {
	path := args[0]

	ruleSet, err := rules.ParseFile(path)
	if err != nil {
		log.Fatalf("Rule definitions rejected: %v", err)
	}

	fmt.Printf("OK: %s (version %s)\n", path, ruleSet.Version())
	for _, domain := range ruleSet.Domains() {
		fmt.Printf("  %-16s %d rules\n", domain, len(ruleSet.Lookup(domain)))
	}
	fmt.Printf("Total: %d rules across %d domains\n", ruleSet.Len(), len(ruleSet.Domains()))
}

func runRulesShow(cmd *cobra.Command, args []string) {
	store, err := newRuleStore()
	if err != nil {
		log.Fatalf("Error loading rules: %v", err)
	}

	ruleSet := store.Current()
	fmt.Printf("Rule set version %s\n", ruleSet.Version())
	for _, domain := range ruleSet.Domains() {
		fmt.Printf("\n[%s]\n", domain)
		for _, rule := range ruleSet.Lookup(domain) {
			fmt.Printf("  %-40s %-8s %s\n", rule.ID, rule.Action, rule.Description)
		}
	}
}

// newRuleStore builds the rule store from --rules or the embedded
// defaults.
func newRuleStore() (*rules.Store, error) {
	if rulesPath != "" {
		return rules.NewStoreFromFile(rulesPath)
	}
	return rules.NewStore()
}
