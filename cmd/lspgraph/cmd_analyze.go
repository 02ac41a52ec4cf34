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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/lspgraph/cmd/lspgraph/config"
	"github.com/AleutianAI/lspgraph/services/lspgraph/analysis"
	"github.com/AleutianAI/lspgraph/services/lspgraph/graph"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lang"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
	"github.com/AleutianAI/lspgraph/services/lspgraph/telemetry"
	"github.com/AleutianAI/lspgraph/services/lspgraph/watch"
)

// serverStopTimeout bounds the shutdown handshake after each pass.
const serverStopTimeout = 10 * time.Second

var errInvalidHighlight = errors.New("invalid highlight")

// =============================================================================
// ANALYZE
// =============================================================================

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	root, err := resolveRoot(root)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cmd, &cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	shutdownTelemetry, err := initTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	registry := lsp.NewRegistry()
	language, err := resolveLanguage(root, analyzeLanguage, registry)
	if err != nil {
		return err
	}
	serverCfg, err := resolveServer(registry, language, analyzeServer, cfg)
	if err != nil {
		return err
	}
	highlights, err := parseHighlights(root, analyzeHighlights)
	if err != nil {
		return err
	}

	output := analyzeOutput
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return err
		}
	}

	r := &runner{
		server:    serverCfg,
		policy:    lang.For(language),
		queueSize: cfg.Analysis.QueueSize,
		output:    output,
		stdout:    cmd.OutOrStdout(),
		logger:    log,
		cfg: analysis.Config{
			Root:              root,
			Workers:           cfg.Analysis.Workers,
			RequestsPerSecond: cfg.Analysis.RequestsPerSecond,
			IncomingCalls:     cfg.Analysis.IncomingCalls,
			SettleDelay:       cfg.Analysis.SettleDelay,
			Extensions:        serverCfg.Extensions,
			Include:           cfg.Analysis.Include,
			Exclude:           cfg.Analysis.Exclude,
			Highlights:        highlights,
		},
	}

	if err := r.once(ctx); err != nil {
		if !analyzeWatch {
			return err
		}
		log.Error("Analysis failed", slog.String("error", err.Error()))
	}
	if !analyzeWatch {
		return nil
	}
	return r.watch(ctx)
}

// applyAnalyzeFlags overlays explicitly set analyze flags on cfg.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Analysis.Workers = analyzeWorkers
	}
	if flags.Changed("rate") {
		cfg.Analysis.RequestsPerSecond = analyzeRate
	}
	if flags.Changed("incoming") {
		cfg.Analysis.IncomingCalls = analyzeIncoming
	}
	if flags.Changed("settle") {
		cfg.Analysis.SettleDelay = analyzeSettle
	}
	if flags.Changed("include") {
		cfg.Analysis.Include = analyzeInclude
	}
	if flags.Changed("exclude") {
		cfg.Analysis.Exclude = analyzeExclude
	}
	if flags.Changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = analyzeTraceExporter
	}
	if flags.Changed("metric-exporter") {
		cfg.Telemetry.MetricExporter = analyzeMetricExporter
	}
	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = analyzeMetricsAddr
		if !flags.Changed("metric-exporter") && analyzeMetricsAddr != "" {
			cfg.Telemetry.MetricExporter = telemetry.ExporterPrometheus
		}
	}
}

// initTelemetry installs the exporters and, for Prometheus, the /metrics
// endpoint.
func initTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (func(context.Context) error, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint

	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		if tcfg.MetricExporter != telemetry.ExporterPrometheus {
			logger.Warn("metrics_addr ignored without the prometheus exporter",
				slog.String("metric_exporter", tcfg.MetricExporter))
		} else if _, err := telemetry.ServeMetrics(ctx, addr, logger); err != nil {
			_ = shutdown(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return shutdown, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// resolveRoot returns the absolute form of root, which must be a directory.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", analysis.ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", analysis.ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", analysis.ErrInvalidRoot, abs)
	}
	return abs, nil
}

// resolveLanguage returns the --lang value or infers the language from root.
func resolveLanguage(root, override string, registry *lsp.Registry) (string, error) {
	if override != "" {
		return strings.ToLower(override), nil
	}
	return lang.Infer(root, registry)
}

// resolveServer picks the server command: --server, then the config file,
// then the registry default.
func resolveServer(registry *lsp.Registry, language, override string, cfg config.Config) (lsp.LanguageConfig, error) {
	commandLine := override
	if commandLine == "" {
		commandLine, _ = cfg.ServerFor(language)
	}
	serverCfg, err := registry.Resolve(language, commandLine)
	if errors.Is(err, lsp.ErrUnsupportedLanguage) {
		return lsp.LanguageConfig{}, fmt.Errorf("%w for %q (use --server or 'lspgraph config set-server'): %w",
			config.ErrServerPathNotSet, language, err)
	}
	return serverCfg, err
}

// parseHighlights converts FILE:LINE:COL arguments into symbol locations.
func parseHighlights(root string, specs []string) ([]model.SymbolLocation, error) {
	locs := make([]model.SymbolLocation, 0, len(specs))
	for _, spec := range specs {
		loc, err := parseHighlight(root, spec)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// parseHighlight parses FILE:LINE:COL with 1-based line and column. A
// relative FILE is resolved against root.
func parseHighlight(root, spec string) (model.SymbolLocation, error) {
	rest, colStr, ok := cutLast(spec, ":")
	if !ok {
		return model.SymbolLocation{}, fmt.Errorf("%w %q: want FILE:LINE:COL", errInvalidHighlight, spec)
	}
	file, lineStr, ok := cutLast(rest, ":")
	if !ok || file == "" {
		return model.SymbolLocation{}, fmt.Errorf("%w %q: want FILE:LINE:COL", errInvalidHighlight, spec)
	}

	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return model.SymbolLocation{}, fmt.Errorf("%w %q: line must be a positive integer", errInvalidHighlight, spec)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return model.SymbolLocation{}, fmt.Errorf("%w %q: column must be a positive integer", errInvalidHighlight, spec)
	}

	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	return model.SymbolLocation{Path: filepath.Clean(file), Line: line - 1, Character: col - 1}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// =============================================================================
// RUNNER
// =============================================================================

// runner performs analysis passes, each against a fresh server process.
type runner struct {
	server    lsp.LanguageConfig
	policy    lang.Policy
	cfg       analysis.Config
	queueSize int
	output    string
	stdout    io.Writer
	logger    *slog.Logger
}

// once starts a server, runs one pass, writes the graph and stops the server.
func (r *runner) once(ctx context.Context) error {
	start := time.Now()

	server := lsp.NewServer(r.server, r.cfg.Root, lsp.ServerOptions{
		QueueSize: r.queueSize,
		Logger:    r.logger,
	})
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverStopTimeout)
		defer cancel()
		_ = server.Shutdown(sctx)
	}()

	cfg := r.cfg
	caps := server.Capabilities()
	cfg.Capabilities = &caps

	g, err := buildGraph(ctx, server.Client(), r.policy, cfg, r.logger)
	if err != nil {
		return err
	}
	if err := writeGraph(g, r.output, r.stdout); err != nil {
		return err
	}

	r.logger.Info("Analysis complete",
		slog.Int("tables", len(g.Tables)),
		slog.Int("edges", len(g.Edges)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// watch re-runs the pass on every debounced batch of source changes until
// ctx is cancelled.
func (r *runner) watch(ctx context.Context) error {
	handler := func(ctx context.Context, changes []watch.Change) {
		r.logger.Info("Changes detected, re-analyzing", slog.Int("changes", len(changes)))
		if err := r.once(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Analysis failed", slog.String("error", err.Error()))
		}
	}

	w, err := watch.New(r.cfg.Root, handler, watch.Options{
		Ignore: watchFilter(r.cfg, r.policy, r.output),
		Logger: r.logger,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	r.logger.Info("Watching for changes", slog.String("root", r.cfg.Root))
	<-ctx.Done()
	return nil
}

// watchFilter excludes the same paths Walk would, plus the output file.
func watchFilter(cfg analysis.Config, policy lang.Policy, output string) watch.Filter {
	ignorer := analysis.NewIgnorer(cfg.Root, cfg.Exclude...)
	var include *ignore.GitIgnore
	if len(cfg.Include) > 0 {
		include = ignore.CompileIgnoreLines(cfg.Include...)
	}

	return func(path string, isDir bool) bool {
		if ignorer.Ignored(path, isDir) {
			return true
		}
		if isDir {
			ignorer.LoadDir(path)
			return false
		}
		if path == output {
			return true
		}
		if len(cfg.Extensions) > 0 && !slices.Contains(cfg.Extensions, filepath.Ext(path)) {
			return true
		}
		rel, err := filepath.Rel(cfg.Root, path)
		if err != nil {
			return true
		}
		rel = filepath.ToSlash(rel)
		if include != nil && !include.MatchesPath(rel) {
			return true
		}
		return policy.ShouldSkipFile(rel)
	}
}

// =============================================================================
// PIPELINE
// =============================================================================

// buildGraph runs one analysis pass over an initialized client and derives
// the graph.
func buildGraph(ctx context.Context, client analysis.Requester, policy lang.Policy, cfg analysis.Config, logger *slog.Logger) (*graph.Graph, error) {
	store, err := analysis.New(client, policy, cfg, logger).Run(ctx)
	if err != nil {
		return nil, err
	}
	return graph.NewBuilder(policy, logger).Build(ctx, store), nil
}

// writeGraph writes g as indented JSON to path, or to stdout when path is
// empty. Files are replaced atomically.
func writeGraph(g *graph.Graph, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".lspgraph-*.json")
	if err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write graph: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}
