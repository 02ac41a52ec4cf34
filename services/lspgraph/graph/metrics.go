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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lspgraph.graph")
	meter  = otel.Meter("lspgraph.graph")
)

var (
	buildLatency metric.Float64Histogram
	edgesTotal   metric.Int64Counter
	graftsTotal  metric.Int64Counter
	droppedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of graph construction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesTotal, err = meter.Int64Counter(
			"graph_edges_total",
			metric.WithDescription("Edges emitted after deduplication"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graftsTotal, err = meter.Int64Counter(
			"graph_grafts_total",
			metric.WithDescription("Symbols grafted into file outlines"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		droppedTotal, err = meter.Int64Counter(
			"graph_dropped_edges_total",
			metric.WithDescription("Relations dropped because an endpoint did not resolve"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuild records the outcome of one Build call.
func recordBuild(ctx context.Context, d time.Duration, edges, grafts, dropped int) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, d.Seconds())
	edgesTotal.Add(ctx, int64(edges))
	graftsTotal.Add(ctx, int64(grafts))
	droppedTotal.Add(ctx, int64(dropped))
}
