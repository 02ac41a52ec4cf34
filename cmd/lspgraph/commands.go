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
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string

	// Analyze flags
	analyzeLanguage       string
	analyzeServer         string
	analyzeWorkers        int
	analyzeRate           float64
	analyzeIncoming       bool
	analyzeSettle         time.Duration
	analyzeHighlights     []string
	analyzeInclude        []string
	analyzeExclude        []string
	analyzeOutput         string
	analyzeWatch          bool
	analyzeTraceExporter  string
	analyzeMetricExporter string
	analyzeMetricsAddr    string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "lspgraph",
	Short: "Build call graphs from a language server",
	Long: `lspgraph starts a language server for a source tree, asks it for every
file's outline and every callable's calls, and writes the resulting graph
of files, symbols and edges as JSON.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ROOT]",
	Short: "Analyze a source tree and write its call graph",
	Long: `Analyze ROOT (default: the current directory) and write the graph as JSON.

The language is inferred from ROOT unless --lang is given. The server
command comes from --server, then the config file, then the built-in
default for the language.

Examples:
  lspgraph analyze ./myproject
  lspgraph analyze . --lang rust --settle 5s -o graph.json
  lspgraph analyze . --incoming --highlight cmd/main.go:12:6
  lspgraph analyze . --watch -o graph.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server LANGUAGE COMMAND",
	Short: "Persist the server command for a language",
	Long: `Persist the server command line used for LANGUAGE.

Examples:
  lspgraph config set-server go "gopls serve"
  lspgraph config set-server rust /opt/bin/rust-analyzer`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSetServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "lspgraph", version)
	},
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: user config dir/lspgraph/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: auto, text, json")

	analyzeCmd.Flags().StringVarP(&analyzeLanguage, "lang", "l", "",
		"Source language (default: inferred from ROOT)")
	analyzeCmd.Flags().StringVarP(&analyzeServer, "server", "s", "",
		"Language server command line, e.g. \"gopls serve\"")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0,
		"Concurrent request workers (0 = config value)")
	analyzeCmd.Flags().Float64Var(&analyzeRate, "rate", 0,
		"Maximum requests per second (0 = config value)")
	analyzeCmd.Flags().BoolVar(&analyzeIncoming, "incoming", false,
		"Also request incoming calls for every callable")
	analyzeCmd.Flags().DurationVar(&analyzeSettle, "settle", 0,
		"Wait after the handshake before the first request")
	analyzeCmd.Flags().StringArrayVar(&analyzeHighlights, "highlight", nil,
		"Highlight the symbol at FILE:LINE:COL (1-based, repeatable)")
	analyzeCmd.Flags().StringSliceVar(&analyzeInclude, "include", nil,
		"Only analyze paths matching these gitignore-style patterns")
	analyzeCmd.Flags().StringSliceVar(&analyzeExclude, "exclude", nil,
		"Skip paths matching these gitignore-style patterns")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"Write the graph to this file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeWatch, "watch", false,
		"Re-analyze whenever source files change")
	analyzeCmd.Flags().StringVar(&analyzeTraceExporter, "trace-exporter", "",
		"Trace exporter: none, stdout, otlp")
	analyzeCmd.Flags().StringVar(&analyzeMetricExporter, "metric-exporter", "",
		"Metric exporter: none, stdout, prometheus")
	analyzeCmd.Flags().StringVar(&analyzeMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9464")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetServerCmd)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
