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

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianClinical/services/cdss/rules/enforcement"
)

// ruleDefinitionFile is the YAML shape of a rule definition source.
type ruleDefinitionFile struct {
	Version string     `yaml:"version"`
	Domains domainList `yaml:"domains"`
}

// domainList preserves the document order of domains.
//
// Within a domain the rule list order defines evaluation priority, and the
// same insertion-order guarantee is kept for the domains themselves so that
// a reloaded file round-trips deterministically.
type domainList []domainEntry

type domainEntry struct {
	Name  string
	Rules []Rule
}

// UnmarshalYAML decodes the domains mapping while preserving key order.
// yaml.v3 decodes mappings into Go maps with undefined iteration order, so
// the mapping node is walked pairwise instead.
func (d *domainList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("domains must be a mapping of domain name to rule list")
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		var entry domainEntry
		if err := keyNode.Decode(&entry.Name); err != nil {
			return fmt.Errorf("domain name: %w", err)
		}
		if err := valNode.Decode(&entry.Rules); err != nil {
			return fmt.Errorf("domain %q: %w", entry.Name, err)
		}
		*d = append(*d, entry)
	}
	return nil
}

// Parse validates a YAML rule definition source and builds a RuleSet.
//
// Description:
//
//	Load is all-or-nothing: any malformed rule (missing predicate, invalid
//	action or severity enum, duplicate id within a domain) rejects the
//	whole source with a *ConfigError and no RuleSet is produced.
//
// Inputs:
//
//	source - Raw YAML bytes.
//	origin - Human-readable description of where the bytes came from,
//	         used in error messages ("embedded", a file path, ...).
//
// Outputs:
//
//	*RuleSet - The fully validated, immutable set.
//	error - *ConfigError on any validation failure.
func Parse(source []byte, origin string) (*RuleSet, error) {
	var file ruleDefinitionFile
	if err := yaml.Unmarshal(source, &file); err != nil {
		return nil, &ConfigError{Source: origin, Detail: "malformed YAML", Err: err}
	}

	if len(file.Domains) == 0 {
		return nil, &ConfigError{Source: origin, Detail: "no domains defined"}
	}

	set := &RuleSet{
		version: file.Version,
		domains: make(map[string][]Rule, len(file.Domains)),
	}

	for _, entry := range file.Domains {
		if entry.Name == "" {
			return nil, &ConfigError{Source: origin, Detail: "empty domain name"}
		}
		if _, dup := set.domains[entry.Name]; dup {
			return nil, &ConfigError{
				Source: origin,
				Detail: fmt.Sprintf("duplicate domain %q", entry.Name),
			}
		}

		seen := make(map[string]bool, len(entry.Rules))
		for i := range entry.Rules {
			rule := &entry.Rules[i]
			if err := rule.validate(entry.Name, i); err != nil {
				return nil, &ConfigError{Source: origin, Err: err}
			}
			if seen[rule.ID] {
				return nil, &ConfigError{
					Source: origin,
					Detail: fmt.Sprintf("duplicate rule id %q in domain %q", rule.ID, entry.Name),
				}
			}
			seen[rule.ID] = true
		}

		set.domains[entry.Name] = entry.Rules
		set.total += len(entry.Rules)
	}

	return set, nil
}

// ParseFile reads and parses a rule definition file.
func ParseFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Detail: "read failed", Err: err}
	}
	return Parse(data, path)
}

// Store holds the process-wide active RuleSet.
//
// The Store is the one piece of CDSS state shared across concurrent
// conversations. Replacement is copy-on-write: readers always observe
// either the previous set or the new one in full, never an interleaving,
// and an in-flight evaluation keeps the snapshot it started with.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	current atomic.Pointer[RuleSet]
	logger  *slog.Logger
}

// NewStore creates a Store seeded with the embedded default rule set.
//
// Outputs:
//
//	*Store - Store serving the embedded rules.
//	error - *ConfigError if the embedded definitions are malformed,
//	        which indicates a build problem.
func NewStore() (*Store, error) {
	set, err := Parse(enforcement.DefaultRuleDefinitions, "embedded")
	if err != nil {
		return nil, err
	}

	s := &Store{logger: slog.Default()}
	s.current.Store(set)
	return s, nil
}

// NewStoreFromFile creates a Store from a rule definition file.
func NewStoreFromFile(path string) (*Store, error) {
	set, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	s := &Store{logger: slog.Default()}
	s.current.Store(set)
	return s, nil
}

// Current returns the active RuleSet snapshot.
//
// Callers evaluating rules should take one snapshot and use it for the
// whole evaluation, so a concurrent reload cannot split a decision across
// two rule versions.
func (s *Store) Current() *RuleSet {
	return s.current.Load()
}

// Lookup returns the active rules for a domain in priority order.
// Unknown domains return an empty slice.
func (s *Store) Lookup(domain string) []Rule {
	return s.Current().Lookup(domain)
}

// Reload parses the source and atomically replaces the active set.
//
// Description:
//
//	On any validation error the previous set stays active and servable;
//	there is no window in which readers see a partial or empty set.
//
// Inputs:
//
//	source - Raw YAML bytes of the replacement definitions.
//	origin - Where the bytes came from, for error messages.
//
// Outputs:
//
//	error - *ConfigError if the source is invalid; the old set remains.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Store) Reload(source []byte, origin string) error {
	set, err := Parse(source, origin)
	if err != nil {
		return err
	}

	old := s.current.Swap(set)
	s.logger.Info("rule set replaced",
		"origin", origin,
		"version", set.Version(),
		"rules", set.Len(),
		"previous_rules", old.Len(),
	)
	return nil
}

// ReloadFile reloads the active set from a file path.
func (s *Store) ReloadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Source: path, Detail: "read failed", Err: err}
	}
	return s.Reload(data, path)
}
