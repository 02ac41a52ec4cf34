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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	ignore "github.com/sabhiram/go-gitignore"
)

// WalkOptions selects the files of an analysis.
type WalkOptions struct {
	// Extensions are the accepted file extensions, with dot. Empty accepts all.
	Extensions []string

	// Include are gitignore-style patterns; when set, a file must match one.
	Include []string

	// Exclude are gitignore-style patterns applied on top of .gitignore.
	Exclude []string

	// Skip is the language's per-file predicate on the slash-separated
	// path relative to the root. May be nil.
	Skip func(rel string) bool
}

// Walk lists the eligible files below root in lexical order.
//
// Description:
//
//	Directories and files excluded by the Ignorer (PreIgnored, Exclude,
//	.gitignore files at any depth) are pruned. Remaining files must carry
//	an accepted extension, match Include when it is set and pass Skip.
//
// Outputs:
//
//	[]string - Absolute paths
//	error - ErrInvalidRoot, or the first walk error
func Walk(root string, opts WalkOptions) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	ignorer := NewIgnorer(root, opts.Exclude...)
	var include *ignore.GitIgnore
	if len(opts.Include) > 0 {
		include = ignore.CompileIgnoreLines(opts.Include...)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ignorer.Ignored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			ignorer.LoadDir(path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if len(opts.Extensions) > 0 && !slices.Contains(opts.Extensions, filepath.Ext(path)) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if include != nil && !include.MatchesPath(rel) {
			return nil
		}
		if opts.Skip != nil && opts.Skip(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
