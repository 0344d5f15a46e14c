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
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool names to tool instances.
	byName map[string]Tool

	// byCategory maps categories to lists of tools.
	byCategory map[Category][]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]Tool),
		byCategory: make(map[Category][]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its Name() and Category(). A tool with the
//	same name replaces the previous registration.
//
// Inputs:
//
//	tool - The tool to register. Nil is ignored.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	category := tool.Category()

	if existing, ok := r.byName[name]; ok {
		oldCategory := existing.Category()
		if oldCategory != category {
			r.removeFromCategory(oldCategory, name)
		}
	}

	r.byName[name] = tool

	replaced := false
	for i, t := range r.byCategory[category] {
		if t.Name() == name {
			r.byCategory[category][i] = tool
			replaced = true
			break
		}
	}
	if !replaced {
		r.byCategory[category] = append(r.byCategory[category], tool)
	}
}

// removeFromCategory removes a tool from a category list.
// Caller must hold the write lock.
func (r *Registry) removeFromCategory(category Category, name string) {
	list := r.byCategory[category]
	for i, t := range list {
		if t.Name() == name {
			r.byCategory[category] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get returns a tool by name.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// GetByCategory returns a copy of the tools in a category.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetByCategory(category Category) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.byCategory[category]
	if !ok {
		return nil
	}
	out := make([]Tool, len(list))
	copy(out, list)
	return out
}

// GetByCategories returns tools from any of the given categories, without
// duplicates, in registration order within each category.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetByCategories(categories ...Category) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Tool
	for _, category := range categories {
		for _, tool := range r.byCategory[category] {
			if !seen[tool.Name()] {
				seen[tool.Name()] = true
				out = append(out, tool)
			}
		}
	}
	return out
}

// Names returns all registered tool names, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Definitions returns definitions for all registered tools, sorted by
// name for stable presentation to the model.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.byName))
	for _, tool := range r.byName {
		out = append(out, tool.Definition())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// DefinitionsFor returns definitions for the given tools in order.
func DefinitionsFor(selected []Tool) []Definition {
	out := make([]Definition, len(selected))
	for i, tool := range selected {
		out[i] = tool.Definition()
	}
	return out
}
