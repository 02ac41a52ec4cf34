// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis drives one analysis pass against a running language
// server.
//
// A pass walks the source tree, requests every file's outline, then
// requests outgoing calls (and optionally incoming calls) for every
// callable and implementations for every interface. Each request phase
// pairs a producer, which issues requests from a bounded worker pool, with
// a consumer, which drains the response stream and folds answers into a
// model.Store.
//
//	┌──────────┐  Request*   ┌────────────┐  frames  ┌────────┐
//	│ producer │────────────▶│ lsp.Client │─────────▶│ server │
//	│ (errgrp) │             │  pending   │◀─────────│        │
//	└──────────┘             └─────┬──────┘          └────────┘
//	      │ finished                │ Responses()
//	      ▼                         ▼
//	┌──────────────────────────────────────┐
//	│ consumer: Resolve → fold into Store  │
//	└──────────────────────────────────────┘
//
// A phase ends when the producer has finished and no request is
// outstanding.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lang"
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

// DefaultWorkers bounds concurrent request issuance when Config.Workers is unset.
const DefaultWorkers = 8

// Phase names used in spans, metrics and logs.
const (
	phaseOutlines  = "outlines"
	phaseRelations = "relations"
)

// Requester is the part of *lsp.Client the orchestrator drives.
type Requester interface {
	RequestSymbols(ctx context.Context, path string, tag any) (int64, error)
	RequestOutgoingCalls(ctx context.Context, uri string, sym lsp.DocumentSymbol, tag any) (int64, error)
	RequestIncomingCalls(ctx context.Context, uri string, sym lsp.DocumentSymbol, tag any) (int64, error)
	RequestImplementations(ctx context.Context, uri string, sym lsp.DocumentSymbol, tag any) (int64, error)

	// Responses is drained by exactly one consumer at a time.
	Responses() <-chan *lsp.Response

	// Resolve removes and returns the tag recorded for a response id.
	Resolve(id lsp.ID) (any, bool)

	// Err reports why the response stream ended.
	Err() error
}

// Config controls one analysis pass.
type Config struct {
	// Root is the project directory.
	Root string

	// Workers bounds concurrent request issuance. Default: DefaultWorkers.
	Workers int

	// RequestsPerSecond limits issuance; zero means unlimited.
	RequestsPerSecond float64

	// IncomingCalls also requests callHierarchy/incomingCalls per callable.
	IncomingCalls bool

	// SettleDelay is waited before the first outline request.
	SettleDelay time.Duration

	// Extensions, Include and Exclude select files; see WalkOptions.
	Extensions []string
	Include    []string
	Exclude    []string

	// Highlights are symbol positions whose cells are emphasized.
	Highlights []model.SymbolLocation

	// Capabilities gates the relation requests. Nil assumes full support.
	Capabilities *lsp.ServerCapabilities
}

// Orchestrator runs analysis passes.
//
// Thread Safety:
//
//	Run must not be called concurrently on one Orchestrator, since every
//	pass consumes the same response stream.
type Orchestrator struct {
	client  Requester
	policy  lang.Policy
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New creates an orchestrator over an initialized client.
//
// Inputs:
//
//	client - A client whose handshake has completed
//	policy - The language policy for file selection and symbol queries
//	cfg - Pass configuration
//	logger - Logger; nil selects slog.Default()
func New(client Requester, policy lang.Policy, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		client: client,
		policy: policy,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Workers)
	}
	return o
}

// Run performs one analysis pass and returns the populated model.
//
// Description:
//
//	Walks Root, issues one outline request per eligible file and waits
//	for every answer, then issues the relation requests derived from the
//	outlines and waits again. Protocol error answers are logged and
//	dropped. Transport failures, a response stream that ends early and
//	context cancellation abort the pass.
//
// Outputs:
//
//	*model.Store - Outlines, relations and highlights
//	error - ErrInvalidRoot, ErrNoFiles, ErrIncomplete, a client error or ctx.Err()
func (o *Orchestrator) Run(ctx context.Context) (*model.Store, error) {
	runID := uuid.NewString()
	logger := o.logger.With(slog.String("run_id", runID), slog.String("language", o.policy.Name()))

	ctx, span := tracer.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("root", o.cfg.Root),
	))
	defer span.End()
	start := time.Now()

	files, err := Walk(o.cfg.Root, WalkOptions{
		Extensions: o.cfg.Extensions,
		Include:    o.cfg.Include,
		Exclude:    o.cfg.Exclude,
		Skip:       o.policy.ShouldSkipFile,
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoFiles, o.cfg.Root)
	}
	recordFiles(ctx, len(files))
	logger.Info("Starting analysis", slog.Int("files", len(files)), slog.Int("workers", o.cfg.Workers))

	if d := o.cfg.SettleDelay; d > 0 {
		logger.Info("Waiting for server to settle", slog.Duration("delay", d))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	store := model.NewStore()
	for _, loc := range o.cfg.Highlights {
		store.Highlight(loc)
	}

	outlines := make([]request, 0, len(files))
	for _, path := range files {
		tag := outlineTag{path: path}
		outlines = append(outlines, func(ctx context.Context) (int64, error) {
			return o.client.RequestSymbols(ctx, path, tag)
		})
	}
	if err := o.runPhase(ctx, logger, store, phaseOutlines, outlines); err != nil {
		return nil, err
	}

	if err := o.runPhase(ctx, logger, store, phaseRelations, o.relationRequests(logger, store)); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("files", store.Len()))
	logger.Info("Analysis complete",
		slog.Int("files", store.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return store, nil
}

// relationRequests derives the second phase from the outlines.
func (o *Orchestrator) relationRequests(logger *slog.Logger, store *model.Store) []request {
	calls, impls := true, true
	if caps := o.cfg.Capabilities; caps != nil {
		calls = caps.HasCallHierarchyProvider()
		impls = caps.HasImplementationProvider()
	}
	if !calls {
		logger.Warn("Server has no call hierarchy support, skipping call edges")
	}
	if !impls {
		logger.Warn("Server has no implementation support, skipping implementation edges")
	}

	var reqs []request
	for _, file := range store.Files() {
		uri := lsp.PathToURI(file.Path)

		if calls {
			for _, sym := range o.policy.Callables(file.Symbols) {
				loc := model.LocationOf(file.Path, sym.SelectionRange.Start)
				out := callsTag{symbol: loc}
				reqs = append(reqs, func(ctx context.Context) (int64, error) {
					return o.client.RequestOutgoingCalls(ctx, uri, sym, out)
				})
				if o.cfg.IncomingCalls {
					in := callsTag{symbol: loc, incoming: true}
					reqs = append(reqs, func(ctx context.Context) (int64, error) {
						return o.client.RequestIncomingCalls(ctx, uri, sym, in)
					})
				}
			}
		}

		if impls {
			for _, sym := range o.policy.Interfaces(file.Symbols) {
				tag := implementationsTag{iface: model.LocationOf(file.Path, sym.SelectionRange.Start)}
				reqs = append(reqs, func(ctx context.Context) (int64, error) {
					return o.client.RequestImplementations(ctx, uri, sym, tag)
				})
			}
		}
	}
	return reqs
}

// =============================================================================
// PHASES
// =============================================================================

// request issues one request and returns its correlation id.
type request func(ctx context.Context) (int64, error)

// runPhase issues requests and folds every answer into store.
//
// Description:
//
//	The producer and the consumer run in one errgroup; the first fatal
//	error cancels both. The producer marks itself finished when it
//	returns, whether or not it issued anything, and the consumer stops
//	once it observes finished with zero outstanding requests.
func (o *Orchestrator) runPhase(ctx context.Context, logger *slog.Logger, store *model.Store, name string, requests []request) error {
	ctx, span := tracer.Start(ctx, "Orchestrator."+name, trace.WithAttributes(
		attribute.Int("requests", len(requests)),
	))
	defer span.End()
	start := time.Now()

	var (
		outstanding atomic.Int64
		issued      atomic.Int64
		finished    atomic.Bool
		produced    = make(chan struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() {
			finished.Store(true)
			close(produced)
		}()
		return o.produce(gctx, requests, &outstanding, &issued)
	})
	g.Go(func() error {
		return o.consume(gctx, logger, store, produced, &finished, &outstanding)
	})

	err := g.Wait()
	recordPhase(ctx, name, time.Since(start), issued.Load())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s phase: %w", name, err)
	}

	logger.Info("Phase complete",
		slog.String("phase", name),
		slog.Int64("requests", issued.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// produce issues every request from at most cfg.Workers goroutines. The
// outstanding counter is raised before a request is sent, so it never
// under-counts while the consumer runs.
func (o *Orchestrator) produce(ctx context.Context, requests []request, outstanding, issued *atomic.Int64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			outstanding.Add(1)
			if _, err := req(ctx); err != nil {
				outstanding.Add(-1)
				return err
			}
			issued.Add(1)
			return nil
		})
	}
	return g.Wait()
}

// consume drains responses until the phase is complete.
func (o *Orchestrator) consume(
	ctx context.Context,
	logger *slog.Logger,
	store *model.Store,
	produced <-chan struct{},
	finished *atomic.Bool,
	outstanding *atomic.Int64,
) error {
	responses := o.client.Responses()
	for {
		if finished.Load() && outstanding.Load() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-produced:
			produced = nil

		case resp, ok := <-responses:
			if !ok {
				cause := o.client.Err()
				if cause == nil {
					cause = lsp.ErrStreamClosed
				}
				return fmt.Errorf("%w (%d unanswered): %w", ErrIncomplete, outstanding.Load(), cause)
			}

			tag, ok := o.client.Resolve(resp.ID)
			if !ok {
				logger.Warn("Ignoring response without pending request", slog.String("id", resp.ID.String()))
				recordUnknownResponse(ctx)
				continue
			}
			outstanding.Add(-1)
			o.fold(ctx, logger, store, tag, resp)
		}
	}
}

// responseLogLevel grades a protocol error answer. Cancelled and
// content-modified answers are expected while files change.
func responseLogLevel(e *lsp.LSPError) slog.Level {
	switch {
	case e == nil:
		return slog.LevelWarn
	case e.IsRequestCancelled(), e.IsContentModified():
		return slog.LevelDebug
	case e.IsServerNotInitialized():
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// fold applies one answer to the store. Failures are logged and dropped.
func (o *Orchestrator) fold(ctx context.Context, logger *slog.Logger, store *model.Store, tag any, resp *lsp.Response) {
	t, ok := tag.(requestTag)
	if !ok {
		logger.Warn("Ignoring response with foreign tag", slog.String("id", resp.ID.String()))
		return
	}

	if err := resp.AsError(); err != nil {
		code := 0
		var lspErr *lsp.LSPError
		if errors.As(err, &lspErr) {
			code = lspErr.Code
		}
		logger.Log(ctx, responseLogLevel(lspErr), "LSP request failed",
			slog.String("method", t.method()),
			slog.String("id", resp.ID.String()),
			slog.Int("code", code),
			slog.String("target", t.target()),
			slog.String("error", err.Error()),
		)
		recordErrorResponse(ctx, t.method(), code)
		return
	}

	if err := t.apply(store, resp); err != nil {
		logger.Warn("Dropping undecodable response",
			slog.String("method", t.method()),
			slog.String("id", resp.ID.String()),
			slog.String("target", t.target()),
			slog.String("error", err.Error()),
		)
	}
}
