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
	"slices"
	"sort"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

// Reconcile grafts a call-hierarchy endpoint into its file's outline.
//
// Description:
//
//	Servers often omit nested or local functions from the outline but still
//	report them as call-hierarchy endpoints. Reconcile descends from the
//	root level, binary-searching each level by selection-range start, and
//	enters the preceding symbol only while it is a function or method whose
//	range strictly contains the endpoint's range. At the innermost such
//	level the endpoint becomes a new symbol; following siblings whose range
//	lies inside the new node's range are demoted to its children.
//
//	Nothing is grafted at the root level, into a non-callable container,
//	into an unknown file, or when a symbol with the same selection start
//	already exists.
//
// Outputs:
//
//	bool - True if the outline changed and its table must be rebuilt
func (s *Store) Reconcile(item lsp.CallHierarchyItem) bool {
	file, ok := s.files[lsp.URIToPath(item.URI)]
	if !ok {
		return false
	}
	return graft(&file.Symbols, item.Symbol())
}

// graft implements Reconcile over one outline.
//
// Descent is recorded as a path of indices from the root; each step
// resolves the current level afresh, so no reference into the tree is held
// across a mutation. Every step moves one level deeper into a strictly
// smaller range, which bounds the loop.
func graft(root *[]lsp.DocumentSymbol, node lsp.DocumentSymbol) bool {
	target := node.SelectionRange.Start
	var path []int

	for {
		level := levelAt(root, path)
		syms := *level

		i := sort.Search(len(syms), func(k int) bool {
			return !syms[k].SelectionRange.Start.Before(target)
		})
		if i < len(syms) && syms[i].SelectionRange.Start == target {
			return false
		}

		if i > 0 && syms[i-1].Range.StrictlyContains(node.Range) {
			if !syms[i-1].Kind.IsCallable() {
				return false
			}
			path = append(path, i-1)
			continue
		}

		if len(path) == 0 {
			return false
		}

		j := i
		for j < len(syms) && node.Range.Contains(syms[j].Range) {
			j++
		}
		children := make([]lsp.DocumentSymbol, 0, len(node.Children)+j-i)
		children = append(children, node.Children...)
		children = append(children, syms[i:j]...)
		sortSymbols(children)
		node.Children = children

		*level = slices.Replace(syms, i, j, node)
		return true
	}
}

// levelAt resolves the child sequence addressed by path.
func levelAt(root *[]lsp.DocumentSymbol, path []int) *[]lsp.DocumentSymbol {
	level := root
	for _, idx := range path {
		level = &(*level)[idx].Children
	}
	return level
}
