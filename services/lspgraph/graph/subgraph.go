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
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

// cluster is a Subgraph under construction. parts is the directory relative
// to the enclosing cluster, split into components.
type cluster struct {
	parts    []string
	nodes    []string
	children []*cluster
}

// BuildSubgraphs groups files into a directory cluster tree.
//
// Description:
//
//	Files are grouped by parent directory. The tree is rooted at the
//	shallowest directory common to all files and titled with its base name.
//	Every other directory is nested inside the deepest already-placed
//	directory that is its ancestor, titled with its path relative to that
//	ancestor. Directories are placed shallowest first in lexical order, so
//	the tree is a pure function of the path set.
//
// Inputs:
//
//	files - Analyzed files; only Path and ID are used
//
// Outputs:
//
//	[]Subgraph - Nil when files is empty, otherwise a single root cluster
func BuildSubgraphs(files []*model.FileOutline) []Subgraph {
	if len(files) == 0 {
		return nil
	}

	byDir := make(map[string][]string)
	for _, f := range files {
		dir := filepath.Dir(f.Path)
		byDir[dir] = append(byDir[dir], strconv.FormatUint(uint64(f.ID), 10))
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	root := commonDir(dirs)

	rel := make(map[string][]string, len(dirs))
	for _, dir := range dirs {
		rel[dir] = splitRel(root, dir)
	}
	slices.SortFunc(dirs, func(a, b string) int {
		if d := len(rel[a]) - len(rel[b]); d != 0 {
			return d
		}
		return slices.Compare(rel[a], rel[b])
	})

	top := &cluster{}
	for _, dir := range dirs {
		nodes := byDir[dir]
		slices.SortFunc(nodes, compareNumeric)
		top.insert(rel[dir], nodes)
	}

	title := filepath.Base(root)
	return []Subgraph{top.subgraph(title)}
}

// insert places a directory's nodes at parts below c.
func (c *cluster) insert(parts []string, nodes []string) {
	if len(parts) == 0 {
		c.nodes = append(c.nodes, nodes...)
		return
	}
	for _, child := range c.children {
		if hasPrefix(parts, child.parts) {
			child.insert(parts[len(child.parts):], nodes)
			return
		}
	}
	c.children = append(c.children, &cluster{parts: parts, nodes: nodes})
}

func (c *cluster) subgraph(title string) Subgraph {
	sg := Subgraph{Title: title, Nodes: c.nodes}
	if sg.Nodes == nil {
		sg.Nodes = []string{}
	}
	for _, child := range c.children {
		sg.Subgraphs = append(sg.Subgraphs, child.subgraph(filepath.Join(child.parts...)))
	}
	return sg
}

// commonDir returns the deepest directory containing every dir.
func commonDir(dirs []string) string {
	common := filepath.Clean(dirs[0])
	for _, dir := range dirs[1:] {
		dir = filepath.Clean(dir)
		for !isWithin(common, dir) {
			parent := filepath.Dir(common)
			if parent == common {
				break
			}
			common = parent
		}
	}
	return common
}

func isWithin(base, path string) bool {
	if base == path {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

func splitRel(root, dir string) []string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

func hasPrefix(parts, prefix []string) bool {
	return len(parts) >= len(prefix) && slices.Equal(parts[:len(prefix)], prefix)
}

func compareNumeric(a, b string) int {
	if d := len(a) - len(b); d != 0 {
		return d
	}
	return strings.Compare(a, b)
}
