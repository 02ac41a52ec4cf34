// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lang holds the per-language symbol policies and language
// inference.
//
// A Policy decides which files are analyzed, which symbol kinds become
// graph cells, how cells are styled and which symbols are queried for
// calls and implementations. Languages without a dedicated policy use
// Default.
package lang

import (
	"path/filepath"
	"strings"

	"github.com/AleutianAI/lspgraph/services/lspgraph/graph"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

// Policy is the per-language collaborator of the analysis and the graph
// builder. Implementations must be safe for concurrent use.
type Policy interface {
	graph.SymbolPolicy

	// Name returns the language identifier.
	Name() string

	// ShouldSkipFile reports whether a walked file is excluded. path is
	// slash-separated and relative to the analysis root.
	ShouldSkipFile(path string) bool

	// Callables returns the symbols queried for outgoing and incoming calls.
	Callables(symbols []lsp.DocumentSymbol) []lsp.DocumentSymbol

	// Interfaces returns the symbols queried for implementations.
	Interfaces(symbols []lsp.DocumentSymbol) []lsp.DocumentSymbol
}

// For returns the policy of language. Languages without a dedicated policy
// get Default under their own name.
func For(language string) Policy {
	switch language {
	case "go":
		return Go{}
	case "rust":
		return Rust{}
	case "java":
		return Java{}
	default:
		return Default{Language: language}
	}
}

// =============================================================================
// DEFAULT
// =============================================================================

// Default keeps declarations and drops data members and literals.
type Default struct {
	Language string
}

// Name implements Policy.
func (d Default) Name() string {
	return d.Language
}

// ShouldSkipFile implements Policy.
func (Default) ShouldSkipFile(string) bool {
	return false
}

// Retain implements graph.SymbolPolicy.
func (Default) Retain(kind lsp.SymbolKind) bool {
	switch kind {
	case lsp.SymbolKindField,
		lsp.SymbolKindVariable,
		lsp.SymbolKindConstant,
		lsp.SymbolKindEnumMember,
		lsp.SymbolKindProperty,
		lsp.SymbolKindTypeParameter,
		lsp.SymbolKindString,
		lsp.SymbolKindNumber,
		lsp.SymbolKindBoolean,
		lsp.SymbolKindArray,
		lsp.SymbolKindKey,
		lsp.SymbolKindNull:
		return false
	}
	return true
}

// Styles implements graph.SymbolPolicy.
func (Default) Styles(sym lsp.DocumentSymbol) []graph.Style {
	switch sym.Kind {
	case lsp.SymbolKindFunction, lsp.SymbolKindMethod, lsp.SymbolKindConstructor:
		return []graph.Style{graph.StyleFunction, graph.StyleRounded}
	case lsp.SymbolKindInterface:
		return []graph.Style{graph.StyleInterface, graph.StyleBorderless}
	}
	return nil
}

// Callables implements Policy. Functions, methods and constructors are
// collected at any depth.
func (Default) Callables(symbols []lsp.DocumentSymbol) []lsp.DocumentSymbol {
	return collect(symbols, nil, func(s lsp.DocumentSymbol) bool {
		return isCallable(s.Kind)
	}, func(lsp.DocumentSymbol) bool { return true })
}

// Interfaces implements Policy.
func (Default) Interfaces(symbols []lsp.DocumentSymbol) []lsp.DocumentSymbol {
	return collect(symbols, nil, func(s lsp.DocumentSymbol) bool {
		return s.Kind == lsp.SymbolKindInterface
	}, func(lsp.DocumentSymbol) bool { return true })
}

func isCallable(kind lsp.SymbolKind) bool {
	return kind.IsCallable() || kind == lsp.SymbolKindConstructor
}

// collect walks symbols depth first, appending every symbol matched by
// want and descending only into symbols accepted by descend.
func collect(symbols, out []lsp.DocumentSymbol, want, descend func(lsp.DocumentSymbol) bool) []lsp.DocumentSymbol {
	for _, s := range symbols {
		if want(s) {
			out = append(out, s)
		}
		if len(s.Children) > 0 && descend(s) {
			out = collect(s.Children, out, want, descend)
		}
	}
	return out
}

// =============================================================================
// GO
// =============================================================================

// Go skips tests and vendored code.
type Go struct {
	Default
}

// Name implements Policy.
func (Go) Name() string {
	return "go"
}

// ShouldSkipFile implements Policy.
func (Go) ShouldSkipFile(path string) bool {
	if strings.HasSuffix(path, "_test.go") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "vendor" || part == "testdata" {
			return true
		}
	}
	return false
}

// =============================================================================
// RUST
// =============================================================================

// Rust styles impl blocks and modules as containers and queries the
// functions grouped inside them.
type Rust struct {
	Default
}

// Name implements Policy.
func (Rust) Name() string {
	return "rust"
}

// Styles implements graph.SymbolPolicy.
func (Rust) Styles(sym lsp.DocumentSymbol) []graph.Style {
	switch {
	case sym.Kind.IsCallable():
		return []graph.Style{graph.StyleFunction, graph.StyleRounded}
	case sym.Kind == lsp.SymbolKindInterface:
		return []graph.Style{graph.StyleInterface, graph.StyleBorderless}
	case sym.Kind == lsp.SymbolKindObject && strings.HasPrefix(sym.Name, "impl"):
		return []graph.Style{graph.StyleMethodBlock, graph.StyleBorderless}
	case sym.Kind == lsp.SymbolKindModule:
		return []graph.Style{graph.StyleModule, graph.StyleBorderless}
	}
	return nil
}

// Callables implements Policy. Function bodies are not searched; local
// functions are reached through call-hierarchy grafting instead.
func (Rust) Callables(symbols []lsp.DocumentSymbol) []lsp.DocumentSymbol {
	return collect(symbols, nil, func(s lsp.DocumentSymbol) bool {
		return s.Kind.IsCallable()
	}, isGroup)
}

// isGroup reports whether s is an impl block, trait or module.
func isGroup(s lsp.DocumentSymbol) bool {
	switch s.Kind {
	case lsp.SymbolKindObject, lsp.SymbolKindInterface, lsp.SymbolKindModule, lsp.SymbolKindNamespace:
		return true
	}
	return false
}

// =============================================================================
// JAVA
// =============================================================================

// Java renders classes as method blocks.
type Java struct {
	Default
}

// Name implements Policy.
func (Java) Name() string {
	return "java"
}

// Styles implements graph.SymbolPolicy.
func (Java) Styles(sym lsp.DocumentSymbol) []graph.Style {
	switch sym.Kind {
	case lsp.SymbolKindFunction, lsp.SymbolKindMethod, lsp.SymbolKindConstructor:
		return []graph.Style{graph.StyleFunction, graph.StyleRounded}
	case lsp.SymbolKindInterface:
		return []graph.Style{graph.StyleInterface, graph.StyleRounded}
	case lsp.SymbolKindClass:
		return []graph.Style{graph.StyleMethodBlock, graph.StyleRounded}
	}
	return nil
}
