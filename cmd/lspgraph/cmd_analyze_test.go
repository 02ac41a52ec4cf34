// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lspgraph/cmd/lspgraph/config"
	"github.com/AleutianAI/lspgraph/services/lspgraph/analysis"
	"github.com/AleutianAI/lspgraph/services/lspgraph/graph"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lang"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp/lsptest"
	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

func TestParseHighlight(t *testing.T) {
	root := filepath.FromSlash("/repo")

	tests := []struct {
		name    string
		spec    string
		want    model.SymbolLocation
		wantErr bool
	}{
		{
			name: "relative",
			spec: "cmd/main.go:12:6",
			want: model.SymbolLocation{Path: filepath.Join(root, "cmd", "main.go"), Line: 11, Character: 5},
		},
		{
			name: "absolute",
			spec: filepath.FromSlash("/other/x.rs") + ":1:1",
			want: model.SymbolLocation{Path: filepath.FromSlash("/other/x.rs"), Line: 0, Character: 0},
		},
		{name: "missing column", spec: "main.go:12", wantErr: true},
		{name: "missing file", spec: ":1:2", wantErr: true},
		{name: "zero line", spec: "main.go:0:1", wantErr: true},
		{name: "non-numeric column", spec: "main.go:3:x", wantErr: true},
		{name: "no separators", spec: "main.go", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHighlight(root, tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidHighlight)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHighlights_StopsAtFirstError(t *testing.T) {
	_, err := parseHighlights("/repo", []string{"a.go:1:1", "bad"})
	assert.ErrorIs(t, err, errInvalidHighlight)

	locs, err := parseHighlights("/repo", nil)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := resolveRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveRoot(file)
	assert.ErrorIs(t, err, analysis.ErrInvalidRoot)

	_, err = resolveRoot(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, analysis.ErrInvalidRoot)
}

func TestResolveServer(t *testing.T) {
	registry := lsp.NewRegistry()
	cfg := config.DefaultConfig()
	cfg.Servers["rust"] = "/opt/rust-analyzer --verbose"

	t.Run("default", func(t *testing.T) {
		sc, err := resolveServer(registry, "go", "", cfg)
		require.NoError(t, err)
		assert.Equal(t, "gopls", sc.Command)
		assert.Equal(t, []string{".go"}, sc.Extensions)
	})

	t.Run("config file", func(t *testing.T) {
		sc, err := resolveServer(registry, "rust", "", cfg)
		require.NoError(t, err)
		assert.Equal(t, "/opt/rust-analyzer", sc.Command)
		assert.Equal(t, []string{"--verbose"}, sc.Args)
	})

	t.Run("flag wins", func(t *testing.T) {
		sc, err := resolveServer(registry, "rust", "ra-multiplex", cfg)
		require.NoError(t, err)
		assert.Equal(t, "ra-multiplex", sc.Command)
		assert.Empty(t, sc.Args)
	})

	t.Run("unknown language needs a server", func(t *testing.T) {
		_, err := resolveServer(registry, "zig", "", cfg)
		assert.ErrorIs(t, err, config.ErrServerPathNotSet)
		assert.ErrorIs(t, err, lsp.ErrUnsupportedLanguage)

		sc, err := resolveServer(registry, "zig", "zls", cfg)
		require.NoError(t, err)
		assert.Equal(t, "zls", sc.Command)
	})
}

func TestResolveLanguage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), nil, 0o644))

	got, err := resolveLanguage(dir, "", lsp.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "rust", got)

	got, err = resolveLanguage(dir, "Go", lsp.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "go", got, "the override wins and is lowercased")
}

func TestWriteGraph(t *testing.T) {
	g := &graph.Graph{
		Tables:    []graph.TableNode{{ID: "1", Title: "a.go", Path: "/repo/a.go", Cells: []graph.Cell{}}},
		Edges:     []graph.Edge{{From: graph.Endpoint{FileID: 1, Line: 2, Character: 5}, To: graph.Endpoint{FileID: 1, Line: 8, Character: 5}}},
		Subgraphs: []graph.Subgraph{{Title: "repo", Nodes: []string{"1"}}},
	}

	var stdout bytes.Buffer
	require.NoError(t, writeGraph(g, "", &stdout))
	assert.Contains(t, stdout.String(), `"from": "1:2_5"`)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, writeGraph(g, path, &stdout))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded graph.Graph
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, g.Edges, decoded.Edges)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestWatchFilter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("gen/\n"), 0o644))
	output := filepath.Join(root, "graph.go")

	filter := watchFilter(analysis.Config{
		Root:       root,
		Extensions: []string{".go"},
		Exclude:    []string{"internal/legacy/"},
	}, lang.For("go"), output)

	tests := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{"main.go", false, false},
		{"pkg", true, false},
		{"pkg/util.go", false, false},
		{"pkg/util_test.go", false, true},
		{"README.md", false, true},
		{"notes.txt", false, true},
		{"gen", true, true},
		{".git", true, true},
		{"internal/legacy", true, true},
		{"vendor/x/y.go", false, true},
		{"graph.go", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := filter(filepath.Join(root, filepath.FromSlash(tt.path)), tt.isDir)
			assert.Equal(t, tt.ignored, got)
		})
	}
}

func TestBuildGraph(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(a, []byte("package x\n"), 0o644))

	symMain := lsp.DocumentSymbol{
		Name:           "main",
		Kind:           lsp.SymbolKindFunction,
		Range:          lsp.Range{Start: lsp.Position{Line: 2}, End: lsp.Position{Line: 6, Character: 1}},
		SelectionRange: lsp.Range{Start: lsp.Position{Line: 2, Character: 5}, End: lsp.Position{Line: 2, Character: 9}},
	}
	helper := lsp.DocumentSymbol{
		Name:           "helper",
		Kind:           lsp.SymbolKindFunction,
		Range:          lsp.Range{Start: lsp.Position{Line: 8}, End: lsp.Position{Line: 10, Character: 1}},
		SelectionRange: lsp.Range{Start: lsp.Position{Line: 8, Character: 5}, End: lsp.Position{Line: 8, Character: 11}},
	}

	srv := lsptest.New()
	srv.Handle(lsp.MethodDocumentSymbol, func(json.RawMessage) (any, *lsp.ResponseError) {
		return []lsp.DocumentSymbol{symMain, helper}, nil
	})
	srv.Handle(lsp.MethodOutgoingCalls, func(params json.RawMessage) (any, *lsp.ResponseError) {
		var p lsp.CallHierarchyCallsParams
		_ = json.Unmarshal(params, &p)
		if p.Item.Name != "main" {
			return []lsp.CallHierarchyOutgoingCall{}, nil
		}
		return []lsp.CallHierarchyOutgoingCall{{To: lsp.NewCallHierarchyItem(lsp.PathToURI(a), helper)}}, nil
	})
	srv.Start()

	client := lsp.NewClient(srv.ClientTransport(), lsp.ClientConfig{})
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.Initialize(ctx, root, nil)
	require.NoError(t, err)

	highlight, err := parseHighlight(root, "a.go:9:6")
	require.NoError(t, err)

	g, err := buildGraph(ctx, client, lang.For("go"), analysis.Config{
		Root:       root,
		Extensions: []string{".go"},
		Highlights: []model.SymbolLocation{highlight},
	}, nil)
	require.NoError(t, err)

	require.Len(t, g.Tables, 1)
	require.Len(t, g.Tables[0].Cells, 2)
	assert.Equal(t, "main", g.Tables[0].Cells[0].Title)
	assert.Contains(t, g.Tables[0].Cells[1].Styles, graph.StyleHighlight)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, "1:2_5", g.Edges[0].From.String())
	assert.Equal(t, "1:8_5", g.Edges[0].To.String())
	require.Len(t, g.Subgraphs, 1)
	assert.Equal(t, []string{"1"}, g.Subgraphs[0].Nodes)
}
