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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

func outlines(paths ...string) []*model.FileOutline {
	out := make([]*model.FileOutline, 0, len(paths))
	for i, p := range paths {
		out = append(out, &model.FileOutline{ID: uint32(i + 1), Path: p})
	}
	return out
}

func TestBuildSubgraphs_Nesting(t *testing.T) {
	files := outlines(
		"/repo/main.go",
		"/repo/x/b.go",
		"/repo/x/y/c.go",
		"/repo/z/w/d.go",
		"/repo/x/e.go",
	)

	got := BuildSubgraphs(files)

	require.Len(t, got, 1)
	root := got[0]
	assert.Equal(t, "repo", root.Title)
	assert.Equal(t, []string{"1"}, root.Nodes)
	require.Len(t, root.Subgraphs, 2)

	x := root.Subgraphs[0]
	assert.Equal(t, "x", x.Title)
	assert.Equal(t, []string{"2", "5"}, x.Nodes)
	require.Len(t, x.Subgraphs, 1)
	assert.Equal(t, "y", x.Subgraphs[0].Title)
	assert.Equal(t, []string{"3"}, x.Subgraphs[0].Nodes)

	zw := root.Subgraphs[1]
	assert.Equal(t, "z/w", zw.Title)
	assert.Equal(t, []string{"4"}, zw.Nodes)
}

func TestBuildSubgraphs_RootWithoutFiles(t *testing.T) {
	got := BuildSubgraphs(outlines("/repo/a/one.go", "/repo/b/two.go"))

	require.Len(t, got, 1)
	assert.Equal(t, "repo", got[0].Title)
	assert.Empty(t, got[0].Nodes)
	require.Len(t, got[0].Subgraphs, 2)
	assert.Equal(t, "a", got[0].Subgraphs[0].Title)
	assert.Equal(t, "b", got[0].Subgraphs[1].Title)
}

func TestBuildSubgraphs_Idempotent(t *testing.T) {
	files := outlines("/repo/x/y/c.go", "/repo/a.go", "/repo/x/b.go", "/repo/q/r/s.go")
	reversed := []*model.FileOutline{files[3], files[2], files[1], files[0]}

	first := BuildSubgraphs(files)
	assert.Equal(t, first, BuildSubgraphs(files))
	assert.Equal(t, first, BuildSubgraphs(reversed), "input order must not matter")
}

func TestBuildSubgraphs_Empty(t *testing.T) {
	assert.Nil(t, BuildSubgraphs(nil))
}
