// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lang

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

// ErrLanguageUndetected is returned when no language can be inferred.
var ErrLanguageUndetected = errors.New("could not infer project language")

// Infer guesses the language of the project at root.
//
// Description:
//
//	Only the direct entries of root are inspected. A project marker file
//	(go.mod, Cargo.toml, pom.xml, ...) decides first; if several languages
//	have markers, the one with more source files among the entries wins.
//	Without markers the most frequent known source extension decides.
//	Remaining ties are broken by language name.
//
// Inputs:
//
//	root - Project directory
//	registry - Supplies marker files and extensions per language
//
// Outputs:
//
//	string - The language identifier
//	error - ErrLanguageUndetected, or the directory read error
func Infer(root string, registry *lsp.Registry) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("infer language: %w", err)
	}

	markers := make(map[string]string)
	for _, language := range registry.Languages() {
		config, _ := registry.Get(language)
		for _, name := range config.RootFiles {
			if _, taken := markers[name]; !taken {
				markers[name] = language
			}
		}
	}

	marked := make(map[string]bool)
	counts := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if language, ok := markers[e.Name()]; ok {
			marked[language] = true
		}
		if language, ok := registry.LanguageForExtension(filepath.Ext(e.Name())); ok {
			counts[language]++
		}
	}

	candidates := make([]string, 0, len(counts))
	if len(marked) > 0 {
		for language := range marked {
			candidates = append(candidates, language)
		}
	} else {
		for language := range counts {
			candidates = append(candidates, language)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrLanguageUndetected, root)
	}

	slices.SortFunc(candidates, func(a, b string) int {
		if d := counts[b] - counts[a]; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return candidates[0], nil
}
