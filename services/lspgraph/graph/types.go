// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// STYLES
// =============================================================================

// Style is a presentation tag attached to a cell or an edge. Renderers map
// tags to CSS classes or layout attributes.
type Style string

const (
	// StyleFunction marks functions, methods and constructors.
	StyleFunction Style = "fn"

	// StyleRounded requests rounded cell corners.
	StyleRounded Style = "rounded"

	// StyleInterface marks interfaces and traits.
	StyleInterface Style = "interface"

	// StyleMethodBlock marks a container of methods (impl block, class).
	StyleMethodBlock Style = "method-block"

	// StyleModule marks module symbols.
	StyleModule Style = "module"

	// StyleBorderless removes the cell border.
	StyleBorderless Style = "borderless"

	// StyleHighlight marks a cell the caller asked to emphasize.
	StyleHighlight Style = "highlight"

	// StyleImplementation marks an implementation edge.
	StyleImplementation Style = "impl"
)

// =============================================================================
// NODES
// =============================================================================

// Cell is one retained symbol. Children mirror the symbol nesting.
type Cell struct {
	// ID is "{fileID}:{port}" and is unique across the graph.
	ID string `json:"id"`

	// Port is "{line}_{character}" of the selection start, unique per table.
	Port string `json:"port"`

	// Title is the symbol name.
	Title string `json:"title"`

	// Kind is the symbol kind name.
	Kind string `json:"kind"`

	Styles   []Style `json:"styles,omitempty"`
	Children []Cell  `json:"children,omitempty"`
}

// TableNode is one analyzed file.
type TableNode struct {
	// ID is the file id in decimal.
	ID string `json:"id"`

	// Title is the file's base name.
	Title string `json:"title"`

	// Path is the absolute file path.
	Path string `json:"path"`

	Cells []Cell `json:"cells"`
}

// Subgraph is a directory cluster.
type Subgraph struct {
	// Title is the directory path relative to the enclosing cluster.
	Title string `json:"title"`

	// Nodes are the table ids of the files directly inside the directory.
	Nodes []string `json:"nodes"`

	Subgraphs []Subgraph `json:"subgraphs,omitempty"`
}

// =============================================================================
// EDGES
// =============================================================================

// Endpoint addresses a cell by file id and selection start.
type Endpoint struct {
	FileID    uint32
	Line      int
	Character int
}

// Port returns the cell port of the endpoint.
func (e Endpoint) Port() string {
	return fmt.Sprintf("%d_%d", e.Line, e.Character)
}

// String renders the endpoint as the cell id it refers to.
func (e Endpoint) String() string {
	return fmt.Sprintf("%d:%d_%d", e.FileID, e.Line, e.Character)
}

// MarshalText implements encoding.TextMarshaler.
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(text []byte) error {
	file, port, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("endpoint %q: missing file id", text)
	}
	line, char, ok := strings.Cut(port, "_")
	if !ok {
		return fmt.Errorf("endpoint %q: missing port", text)
	}

	id, err := strconv.ParseUint(file, 10, 32)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", text, err)
	}
	l, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", text, err)
	}
	c, err := strconv.Atoi(char)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", text, err)
	}

	*e = Endpoint{FileID: uint32(id), Line: l, Character: c}
	return nil
}

// Edge connects two cells. Identity is (From, To); Styles do not take
// part in deduplication.
type Edge struct {
	From   Endpoint `json:"from"`
	To     Endpoint `json:"to"`
	Styles []Style  `json:"styles,omitempty"`
}

// edgeKey is the deduplication identity of an edge.
type edgeKey struct {
	from, to Endpoint
}

// Graph is the renderer-facing result of one analysis run.
type Graph struct {
	Tables    []TableNode `json:"tables"`
	Edges     []Edge      `json:"edges"`
	Subgraphs []Subgraph  `json:"subgraphs"`
}
