// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model holds the per-run symbol model: file outlines keyed by
// path, the call and implementation relations gathered from the server,
// and the reconciliation step that grafts nested functions the outline
// omitted.
//
// A Store is built by a single consumer goroutine and read by the graph
// builder afterwards. It is not safe for concurrent use.
package model

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

// SymbolLocation identifies a position-addressed code entity.
// Two locations are equal iff path, line and character all match.
type SymbolLocation struct {
	Path      string
	Line      int
	Character int
}

// LocationOf builds a location from a path and a position.
func LocationOf(path string, pos lsp.Position) SymbolLocation {
	return SymbolLocation{Path: path, Line: pos.Line, Character: pos.Character}
}

// Position returns the line/character part of the location.
func (l SymbolLocation) Position() lsp.Position {
	return lsp.Position{Line: l.Line, Character: l.Character}
}

// String renders the location as path:line:character.
func (l SymbolLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Character)
}

// Compare orders locations by path, then line, then character.
func (l SymbolLocation) Compare(other SymbolLocation) int {
	if c := cmp.Compare(l.Path, other.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(l.Line, other.Line); c != 0 {
		return c
	}
	return cmp.Compare(l.Character, other.Character)
}

// FileOutline is the symbol tree of one analyzed file.
type FileOutline struct {
	// ID is assigned on first insertion, starting at 1, and never changes.
	ID uint32

	// Path is the absolute file path.
	Path string

	// Symbols are the root-level symbols, sorted by selection-range start
	// at every level.
	Symbols []lsp.DocumentSymbol
}

// Store is the in-memory symbol model of one analysis run.
type Store struct {
	files  map[string]*FileOutline
	nextID uint32

	outgoing        map[SymbolLocation][]lsp.CallHierarchyOutgoingCall
	incoming        map[SymbolLocation][]lsp.CallHierarchyIncomingCall
	implementations map[SymbolLocation][]SymbolLocation

	highlights map[string]map[lsp.Position]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		files:           make(map[string]*FileOutline),
		outgoing:        make(map[SymbolLocation][]lsp.CallHierarchyOutgoingCall),
		incoming:        make(map[SymbolLocation][]lsp.CallHierarchyIncomingCall),
		implementations: make(map[SymbolLocation][]SymbolLocation),
		highlights:      make(map[string]map[lsp.Position]struct{}),
	}
}

// =============================================================================
// OUTLINES
// =============================================================================

// InsertOrReplace records the outline of path.
//
// Description:
//
//	The first insertion of a path assigns the next sequential id. A repeat
//	insertion replaces the symbol sequence and keeps the id; no merge is
//	attempted. Symbols are sorted by selection-range start at every level.
func (s *Store) InsertOrReplace(path string, symbols []lsp.DocumentSymbol) *FileOutline {
	sortSymbols(symbols)

	if file, ok := s.files[path]; ok {
		file.Symbols = symbols
		return file
	}

	s.nextID++
	file := &FileOutline{ID: s.nextID, Path: path, Symbols: symbols}
	s.files[path] = file
	return file
}

// File returns the outline recorded for path.
func (s *Store) File(path string) (*FileOutline, bool) {
	file, ok := s.files[path]
	return file, ok
}

// Files returns every outline ordered by id.
func (s *Store) Files() []*FileOutline {
	files := make([]*FileOutline, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files
}

// Len returns the number of recorded files.
func (s *Store) Len() int {
	return len(s.files)
}

// sortSymbols orders every level of the tree by selection-range start.
func sortSymbols(symbols []lsp.DocumentSymbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].SelectionRange.Start.Before(symbols[j].SelectionRange.Start)
	})
	for i := range symbols {
		sortSymbols(symbols[i].Children)
	}
}

// =============================================================================
// RELATIONS
// =============================================================================

// SetOutgoing records the callees of the symbol at loc. Last write wins.
func (s *Store) SetOutgoing(loc SymbolLocation, calls []lsp.CallHierarchyOutgoingCall) {
	s.outgoing[loc] = calls
}

// Outgoing returns the callees recorded for loc.
func (s *Store) Outgoing(loc SymbolLocation) []lsp.CallHierarchyOutgoingCall {
	return s.outgoing[loc]
}

// OutgoingSources returns every caller location, sorted.
func (s *Store) OutgoingSources() []SymbolLocation {
	return sortedKeys(s.outgoing)
}

// SetIncoming records the callers of the symbol at loc. Last write wins.
func (s *Store) SetIncoming(loc SymbolLocation, calls []lsp.CallHierarchyIncomingCall) {
	s.incoming[loc] = calls
}

// Incoming returns the callers recorded for loc.
func (s *Store) Incoming(loc SymbolLocation) []lsp.CallHierarchyIncomingCall {
	return s.incoming[loc]
}

// IncomingTargets returns every callee location with recorded callers, sorted.
func (s *Store) IncomingTargets() []SymbolLocation {
	return sortedKeys(s.incoming)
}

// SetImplementations records the implementors of the interface at loc.
// Last write wins.
func (s *Store) SetImplementations(loc SymbolLocation, impls []SymbolLocation) {
	s.implementations[loc] = impls
}

// Implementations returns the implementors recorded for loc.
func (s *Store) Implementations(loc SymbolLocation) []SymbolLocation {
	return s.implementations[loc]
}

// ImplementedInterfaces returns every interface location, sorted.
func (s *Store) ImplementedInterfaces() []SymbolLocation {
	return sortedKeys(s.implementations)
}

func sortedKeys[V any](m map[SymbolLocation]V) []SymbolLocation {
	keys := make([]SymbolLocation, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, SymbolLocation.Compare)
	return keys
}

// =============================================================================
// HIGHLIGHTS
// =============================================================================

// Highlight marks the symbol whose selection starts at loc.
func (s *Store) Highlight(loc SymbolLocation) {
	set, ok := s.highlights[loc.Path]
	if !ok {
		set = make(map[lsp.Position]struct{})
		s.highlights[loc.Path] = set
	}
	set[loc.Position()] = struct{}{}
}

// Highlighted reports whether the position in path was marked.
func (s *Store) Highlighted(path string, pos lsp.Position) bool {
	_, ok := s.highlights[path][pos]
	return ok
}
