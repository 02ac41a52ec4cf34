// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

func TestStore_InsertOrReplace(t *testing.T) {
	s := NewStore()

	a := s.InsertOrReplace("/repo/a.go", nil)
	b := s.InsertOrReplace("/repo/b.go", nil)
	assert.Equal(t, uint32(1), a.ID, "ids start at 1")
	assert.Equal(t, uint32(2), b.ID)

	replaced := s.InsertOrReplace("/repo/a.go", []lsp.DocumentSymbol{sym("F", lsp.SymbolKindFunction, 3, 5, 9)})
	assert.Equal(t, uint32(1), replaced.ID, "repeat insertion keeps the id")
	assert.Len(t, replaced.Symbols, 1, "repeat insertion replaces symbols")
	assert.Equal(t, 2, s.Len())

	files := s.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "/repo/a.go", files[0].Path)
	assert.Equal(t, "/repo/b.go", files[1].Path)
}

func TestStore_SortsOutline(t *testing.T) {
	s := NewStore()
	file := s.InsertOrReplace("/repo/a.go", []lsp.DocumentSymbol{
		sym("z", lsp.SymbolKindFunction, 30, 5, 40),
		sym("a", lsp.SymbolKindStruct, 1, 5, 20,
			sym("m2", lsp.SymbolKindField, 10, 2, 10),
			sym("m1", lsp.SymbolKindField, 5, 2, 5),
		),
	})

	assert.Equal(t, "a", file.Symbols[0].Name)
	assert.Equal(t, "m1", file.Symbols[0].Children[0].Name)
	assertOrdered(t, file.Symbols)
}

func TestStore_Relations(t *testing.T) {
	s := NewStore()
	f := SymbolLocation{Path: "/repo/a.go", Line: 3, Character: 5}
	g := SymbolLocation{Path: "/repo/a.go", Line: 1, Character: 5}

	s.SetOutgoing(f, []lsp.CallHierarchyOutgoingCall{{}})
	s.SetOutgoing(g, nil)
	s.SetOutgoing(f, []lsp.CallHierarchyOutgoingCall{{}, {}})

	assert.Len(t, s.Outgoing(f), 2, "last write wins")
	assert.Equal(t, []SymbolLocation{g, f}, s.OutgoingSources())

	s.SetImplementations(g, []SymbolLocation{f})
	assert.Equal(t, []SymbolLocation{f}, s.Implementations(g))
	assert.Equal(t, []SymbolLocation{g}, s.ImplementedInterfaces())
}

func TestStore_Highlights(t *testing.T) {
	s := NewStore()
	s.Highlight(SymbolLocation{Path: "/repo/a.go", Line: 3, Character: 5})

	assert.True(t, s.Highlighted("/repo/a.go", lsp.Position{Line: 3, Character: 5}))
	assert.False(t, s.Highlighted("/repo/a.go", lsp.Position{Line: 3, Character: 6}))
	assert.False(t, s.Highlighted("/repo/b.go", lsp.Position{Line: 3, Character: 5}))
}

func TestSymbolLocation_Equality(t *testing.T) {
	a := LocationOf("/repo/a.go", lsp.Position{Line: 1, Character: 2})
	b := SymbolLocation{Path: "/repo/a.go", Line: 1, Character: 2}
	m := map[SymbolLocation]int{a: 1}

	assert.Equal(t, 1, m[b])
	assert.Equal(t, "/repo/a.go:1:2", a.String())
	assert.Negative(t, a.Compare(SymbolLocation{Path: "/repo/a.go", Line: 1, Character: 3}))
}
