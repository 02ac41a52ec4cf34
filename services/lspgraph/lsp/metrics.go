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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for LSP operations.
var (
	tracer = otel.Tracer("lspgraph.lsp")
	meter  = otel.Meter("lspgraph.lsp")
)

// Metrics for LSP traffic.
var (
	requestTotal     metric.Int64Counter
	frameBytes       metric.Int64Histogram
	malformedFrames  metric.Int64Counter
	handshakeLatency metric.Float64Histogram
	serverSpawns     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestTotal, err = meter.Int64Counter(
			"lsp_requests_total",
			metric.WithDescription("Total number of LSP requests issued"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		frameBytes, err = meter.Int64Histogram(
			"lsp_frame_bytes",
			metric.WithDescription("Payload size of inbound LSP frames"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		malformedFrames, err = meter.Int64Counter(
			"lsp_malformed_frames_total",
			metric.WithDescription("Inbound frames that could not be decoded"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		handshakeLatency, err = meter.Float64Histogram(
			"lsp_handshake_duration_seconds",
			metric.WithDescription("Duration of the initialize handshake"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Total number of LSP server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRequest counts one issued request.
func recordRequest(ctx context.Context, method string) {
	if err := initMetrics(); err != nil {
		return
	}
	requestTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// recordFrameRead records the payload size of one inbound frame.
func recordFrameRead(size int) {
	if err := initMetrics(); err != nil {
		return
	}
	frameBytes.Record(context.Background(), int64(size))
}

// recordMalformedFrame counts one fatal framing error.
func recordMalformedFrame() {
	if err := initMetrics(); err != nil {
		return
	}
	malformedFrames.Add(context.Background(), 1)
}

// recordHandshake records the initialize round trip.
func recordHandshake(ctx context.Context, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	handshakeLatency.Record(ctx, d.Seconds())
}

// recordServerSpawn records a server spawn event.
func recordServerSpawn(ctx context.Context, language string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}
