// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// PreIgnored are gitignore patterns applied to every walk in addition to
// the project's .gitignore files.
var PreIgnored = []string{
	".*",
	"*.html", "*.css", "*.md", "*.txt",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.ico",
	"*.csv", "*.json", "*.lock", "*.log", "*.toml", "*.xml",
	"*.yaml", "*.yml", "*.lex", "*.yacc",
	"**/node_modules/", "target/",
}

// Ignorer evaluates .gitignore rules below a root.
//
// Description:
//
//	Root rules are PreIgnored plus any extra patterns plus root/.gitignore.
//	Nested .gitignore files are loaded with LoadDir as directories are
//	visited and apply to paths relative to their own directory.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Ignorer struct {
	root string

	mu    sync.RWMutex
	rules map[string]*ignore.GitIgnore
}

// NewIgnorer creates an ignorer for root. extra holds additional
// gitignore-style patterns relative to root.
func NewIgnorer(root string, extra ...string) *Ignorer {
	lines := append(append([]string(nil), PreIgnored...), extra...)
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return &Ignorer{
		root:  root,
		rules: map[string]*ignore.GitIgnore{"": ignore.CompileIgnoreLines(lines...)},
	}
}

// LoadDir compiles dir/.gitignore if present. dir must lie below the root.
func (i *Ignorer) LoadDir(dir string) {
	rel, ok := i.rel(dir)
	if !ok || rel == "" {
		return
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return
	}

	i.mu.Lock()
	i.rules[rel] = gi
	i.mu.Unlock()
}

// Ignored reports whether p, a file or directory below the root, is
// excluded by any applicable rule set. The root itself is never ignored.
func (i *Ignorer) Ignored(p string, isDir bool) bool {
	rel, ok := i.rel(p)
	if !ok {
		return true
	}
	if rel == "" {
		return false
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	for dir := path.Dir(rel); ; dir = path.Dir(dir) {
		key := dir
		if key == "." {
			key = ""
		}
		if gi, ok := i.rules[key]; ok {
			sub := rel
			if key != "" {
				sub = strings.TrimPrefix(rel, key+"/")
			}
			if isDir {
				sub += "/"
			}
			if gi.MatchesPath(sub) {
				return true
			}
		}
		if key == "" {
			return false
		}
	}
}

// rel returns p relative to the root in slash form; "" for the root.
func (i *Ignorer) rel(p string) (string, bool) {
	rel, err := filepath.Rel(i.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}
