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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lspgraph.analysis")
	meter  = otel.Meter("lspgraph.analysis")
)

var (
	phaseLatency   metric.Float64Histogram
	phaseRequests  metric.Int64Counter
	errorResponses metric.Int64Counter
	unknownIDs     metric.Int64Counter
	filesAnalyzed  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		phaseLatency, err = meter.Float64Histogram(
			"analysis_phase_duration_seconds",
			metric.WithDescription("Duration of one request phase, issue to last answer"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		phaseRequests, err = meter.Int64Counter(
			"analysis_requests_total",
			metric.WithDescription("Requests issued by the orchestrator"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		errorResponses, err = meter.Int64Counter(
			"analysis_error_responses_total",
			metric.WithDescription("Responses carrying a protocol error"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unknownIDs, err = meter.Int64Counter(
			"analysis_unknown_responses_total",
			metric.WithDescription("Responses whose id had no pending request"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesAnalyzed, err = meter.Int64Counter(
			"analysis_files_total",
			metric.WithDescription("Files whose outline was requested"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPhase records a completed phase.
func recordPhase(ctx context.Context, phase string, d time.Duration, requests int64) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("phase", phase))
	phaseLatency.Record(ctx, d.Seconds(), attrs)
	phaseRequests.Add(ctx, requests, attrs)
}

// recordErrorResponse counts one protocol error answer.
func recordErrorResponse(ctx context.Context, method string, code int) {
	if err := initMetrics(); err != nil {
		return
	}
	errorResponses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("code", code),
	))
}

// recordUnknownResponse counts one uncorrelated answer.
func recordUnknownResponse(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	unknownIDs.Add(ctx, 1)
}

// recordFiles counts walked files.
func recordFiles(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	filesAnalyzed.Add(ctx, int64(n))
}
