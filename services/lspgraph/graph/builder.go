// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph turns a reconciled symbol model into the renderer-facing
// graph: one table per file, one cell per retained symbol, deduplicated
// edges and a directory cluster tree.
package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

// SymbolPolicy decides which symbols become cells and how they look.
type SymbolPolicy interface {
	// Retain reports whether symbols of kind are kept.
	Retain(kind lsp.SymbolKind) bool

	// Styles returns the presentation tags for a retained symbol.
	Styles(sym lsp.DocumentSymbol) []Style
}

// Builder converts a Store into a Graph.
//
// Thread Safety:
//
//	A Builder holds no per-build state and may be reused. Build mutates the
//	Store it is given (grafts) and must not run concurrently with other
//	users of that Store.
type Builder struct {
	policy SymbolPolicy
	logger *slog.Logger
}

// NewBuilder creates a builder using policy. A nil logger selects slog.Default().
func NewBuilder(policy SymbolPolicy, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{policy: policy, logger: logger}
}

// buildState carries the tables and edges of one Build call.
type buildState struct {
	store  *model.Store
	tables map[uint32]*TableNode
	cells  map[Endpoint]struct{}
	edges  []Edge
	seen   map[edgeKey]struct{}

	grafts  int
	dropped int
}

// Build derives tables, edges and clusters from store.
//
// Description:
//
//	Tables are derived per file through the policy. Relations are then
//	resolved to endpoints in a deterministic order: incoming calls,
//	outgoing calls, implementations, each by sorted source location. An
//	edge is emitted only if both endpoints resolve to retained cells, and
//	the first edge seen for a (from, to) pair wins.
//
//	Call-hierarchy endpoints missing from their file's outline are grafted
//	through Store.Reconcile; the owning table is rebuilt when a graft
//	succeeds.
//
// Inputs:
//
//	ctx - Used for tracing and metrics only
//	store - The completed symbol model
//
// Outputs:
//
//	*Graph - Tables ordered by file id, edges in emission order, clusters
func (b *Builder) Build(ctx context.Context, store *model.Store) *Graph {
	ctx, span := tracer.Start(ctx, "Builder.Build")
	defer span.End()
	start := time.Now()

	st := &buildState{
		store:  store,
		tables: make(map[uint32]*TableNode),
		cells:  make(map[Endpoint]struct{}),
		seen:   make(map[edgeKey]struct{}),
	}

	files := store.Files()
	for _, file := range files {
		b.buildTable(st, file)
	}

	b.incomingEdges(st)
	b.outgoingEdges(st)
	b.implementationEdges(st)

	g := &Graph{
		Tables:    make([]TableNode, 0, len(files)),
		Edges:     st.edges,
		Subgraphs: BuildSubgraphs(files),
	}
	for _, file := range files {
		g.Tables = append(g.Tables, *st.tables[file.ID])
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}

	span.SetAttributes(
		attribute.Int("graph.tables", len(g.Tables)),
		attribute.Int("graph.edges", len(g.Edges)),
		attribute.Int("graph.grafts", st.grafts),
	)
	recordBuild(ctx, time.Since(start), len(g.Edges), st.grafts, st.dropped)

	b.logger.Info("Graph built",
		slog.Int("tables", len(g.Tables)),
		slog.Int("edges", len(g.Edges)),
		slog.Int("grafts", st.grafts),
		slog.Int("dropped_edges", st.dropped),
	)
	return g
}

// =============================================================================
// TABLES
// =============================================================================

// buildTable (re)derives the table of file and registers its cells.
func (b *Builder) buildTable(st *buildState, file *model.FileOutline) {
	table := &TableNode{
		ID:    strconv.FormatUint(uint64(file.ID), 10),
		Title: filepath.Base(file.Path),
		Path:  file.Path,
		Cells: b.cells(st, file, file.Symbols),
	}
	st.tables[file.ID] = table
}

// cells converts one outline level, dropping filtered symbols with their
// subtrees.
func (b *Builder) cells(st *buildState, file *model.FileOutline, symbols []lsp.DocumentSymbol) []Cell {
	out := make([]Cell, 0, len(symbols))
	for _, sym := range symbols {
		if !b.policy.Retain(sym.Kind) {
			continue
		}

		ep := Endpoint{
			FileID:    file.ID,
			Line:      sym.SelectionRange.Start.Line,
			Character: sym.SelectionRange.Start.Character,
		}
		st.cells[ep] = struct{}{}

		styles := b.policy.Styles(sym)
		if st.store.Highlighted(file.Path, sym.SelectionRange.Start) {
			styles = append(append([]Style(nil), styles...), StyleHighlight)
		}

		out = append(out, Cell{
			ID:       ep.String(),
			Port:     ep.Port(),
			Title:    sym.Name,
			Kind:     sym.Kind.String(),
			Styles:   styles,
			Children: b.cells(st, file, sym.Children),
		})
	}
	return out
}

// =============================================================================
// EDGES
// =============================================================================

// resolve maps a location to a retained cell.
func (b *Builder) resolve(st *buildState, loc model.SymbolLocation) (Endpoint, bool) {
	file, ok := st.store.File(loc.Path)
	if !ok {
		return Endpoint{}, false
	}
	ep := Endpoint{FileID: file.ID, Line: loc.Line, Character: loc.Character}
	_, ok = st.cells[ep]
	return ep, ok
}

// resolveItem maps a call-hierarchy endpoint to a retained cell, grafting
// it into its outline when the server omitted it.
func (b *Builder) resolveItem(st *buildState, item lsp.CallHierarchyItem) (Endpoint, bool) {
	loc := model.LocationOf(lsp.URIToPath(item.URI), item.SelectionRange.Start)
	if ep, ok := b.resolve(st, loc); ok {
		return ep, true
	}
	if !b.policy.Retain(item.Kind) || !st.store.Reconcile(item) {
		return Endpoint{}, false
	}

	st.grafts++
	file, _ := st.store.File(loc.Path)
	b.buildTable(st, file)
	b.logger.Debug("Grafted nested symbol",
		slog.String("name", item.Name),
		slog.String("location", loc.String()),
	)
	return b.resolve(st, loc)
}

// addEdge appends an edge unless its (from, to) pair was already emitted.
func (st *buildState) addEdge(from, to Endpoint, styles []Style) {
	key := edgeKey{from: from, to: to}
	if _, dup := st.seen[key]; dup {
		return
	}
	st.seen[key] = struct{}{}
	st.edges = append(st.edges, Edge{From: from, To: to, Styles: styles})
}

// incomingEdges emits caller → callee edges from incoming-call answers.
func (b *Builder) incomingEdges(st *buildState) {
	for _, callee := range st.store.IncomingTargets() {
		calls := st.store.Incoming(callee)
		to, ok := b.resolve(st, callee)
		if !ok {
			st.dropped += len(calls)
			continue
		}
		for _, call := range calls {
			from, ok := b.resolveItem(st, call.From)
			if !ok {
				st.dropped++
				continue
			}
			st.addEdge(from, to, nil)
		}
	}
}

// outgoingEdges emits caller → callee edges from outgoing-call answers.
func (b *Builder) outgoingEdges(st *buildState) {
	for _, caller := range st.store.OutgoingSources() {
		calls := st.store.Outgoing(caller)
		from, ok := b.resolve(st, caller)
		if !ok {
			st.dropped += len(calls)
			continue
		}
		for _, call := range calls {
			to, ok := b.resolveItem(st, call.To)
			if !ok {
				st.dropped++
				continue
			}
			st.addEdge(from, to, nil)
		}
	}
}

// implementationEdges emits implementor → interface edges.
func (b *Builder) implementationEdges(st *buildState) {
	for _, iface := range st.store.ImplementedInterfaces() {
		impls := st.store.Implementations(iface)
		to, ok := b.resolve(st, iface)
		if !ok {
			st.dropped += len(impls)
			continue
		}
		for _, impl := range impls {
			from, ok := b.resolve(st, impl)
			if !ok {
				st.dropped++
				continue
			}
			st.addEdge(from, to, []Style{StyleImplementation})
		}
	}
}
