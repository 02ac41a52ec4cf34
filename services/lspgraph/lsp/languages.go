// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LanguageConfig describes how to launch the server for one language.
type LanguageConfig struct {
	// Language is the language identifier (e.g., "go", "rust").
	Language string

	// Command is the executable name or path.
	Command string

	// Args are command-line arguments to pass to the server.
	Args []string

	// Extensions are file extensions this server handles (e.g., ".go").
	Extensions []string

	// RootFiles are files that indicate a project root (e.g., "go.mod").
	RootFiles []string

	// InitializationOptions are custom options passed during initialize.
	InitializationOptions interface{}
}

// Registry maps language identifiers to server configurations.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byLanguage map[string]LanguageConfig
	byExt      map[string]string
}

// NewRegistry creates a registry holding the built-in defaults.
func NewRegistry() *Registry {
	r := &Registry{
		byLanguage: make(map[string]LanguageConfig),
		byExt:      make(map[string]string),
	}
	r.registerDefaults()
	return r
}

// registerDefaults adds configurations for the common servers.
func (r *Registry) registerDefaults() {
	r.Register(LanguageConfig{
		Language:   "go",
		Command:    "gopls",
		Args:       []string{"serve"},
		Extensions: []string{".go"},
		RootFiles:  []string{"go.mod", "go.sum"},
	})

	r.Register(LanguageConfig{
		Language:   "rust",
		Command:    "rust-analyzer",
		Extensions: []string{".rs"},
		RootFiles:  []string{"Cargo.toml"},
	})

	r.Register(LanguageConfig{
		Language:   "java",
		Command:    "jdtls",
		Extensions: []string{".java"},
		RootFiles:  []string{"pom.xml", "build.gradle", "build.gradle.kts"},
	})

	r.Register(LanguageConfig{
		Language:   "python",
		Command:    "pyright-langserver",
		Args:       []string{"--stdio"},
		Extensions: []string{".py", ".pyi"},
		RootFiles:  []string{"pyproject.toml", "setup.py"},
	})

	r.Register(LanguageConfig{
		Language:   "typescript",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		RootFiles:  []string{"tsconfig.json", "package.json"},
	})

	r.Register(LanguageConfig{
		Language:   "c",
		Command:    "clangd",
		Extensions: []string{".c", ".h", ".cc", ".cpp", ".hpp", ".cxx"},
		RootFiles:  []string{"compile_commands.json", "CMakeLists.txt"},
	})
}

// Register adds or replaces a configuration.
func (r *Registry) Register(config LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[config.Language] = config
	for _, ext := range config.Extensions {
		r.byExt[ext] = config.Language
	}
}

// Get returns the configuration for a language.
func (r *Registry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.byLanguage[language]
	return config, ok
}

// LanguageForExtension maps a file extension (with dot) to its language.
func (r *Registry) LanguageForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byExt[ext]
	return lang, ok
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Resolve returns the launch configuration for language.
//
// Description:
//
//	When commandLine is non-empty it replaces the default command and
//	arguments; it is split on whitespace ("gopls serve" → gopls, [serve]).
//
// Outputs:
//
//	LanguageConfig - Configuration ready for NewServer
//	error - ErrUnsupportedLanguage if the language is unknown and no
//	        command line was supplied
func (r *Registry) Resolve(language, commandLine string) (LanguageConfig, error) {
	config, ok := r.Get(language)
	if !ok {
		if commandLine == "" {
			return LanguageConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
		}
		config = LanguageConfig{Language: language}
	}

	if fields := strings.Fields(commandLine); len(fields) > 0 {
		config.Command = fields[0]
		config.Args = fields[1:]
	}
	return config, nil
}
