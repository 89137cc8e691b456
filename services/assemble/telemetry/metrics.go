// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for discovery operations.
var meter = otel.Meter("aleutian.assemble")

// Metrics for discovery runs.
var (
	cloneLatency  metric.Float64Histogram
	cloneTotal    metric.Int64Counter
	manifestTotal metric.Int64Counter
	edgesRecorded metric.Int64Counter
	depsSkipped   metric.Int64Counter
	levelLatency  metric.Float64Histogram
	levelWidth    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cloneLatency, err = meter.Float64Histogram(
			"assemble_clone_duration_seconds",
			metric.WithDescription("Duration of shared clone establishment"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cloneTotal, err = meter.Int64Counter(
			"assemble_clone_total",
			metric.WithDescription("Total number of clone establishment attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		manifestTotal, err = meter.Int64Counter(
			"assemble_manifest_reads_total",
			metric.WithDescription("Total number of dependency manifest reads"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesRecorded, err = meter.Int64Counter(
			"assemble_edges_recorded_total",
			metric.WithDescription("Total number of dependency relations recorded"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		depsSkipped, err = meter.Int64Counter(
			"assemble_dependencies_skipped_total",
			metric.WithDescription("Dependencies excluded from expansion, by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		levelLatency, err = meter.Float64Histogram(
			"assemble_level_duration_seconds",
			metric.WithDescription("Duration of each discovery level"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		levelWidth, err = meter.Int64Histogram(
			"assemble_level_width",
			metric.WithDescription("Number of identities processed per level"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordClone records one clone establishment attempt.
func RecordClone(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	cloneLatency.Record(ctx, duration.Seconds(), attrs)
	cloneTotal.Add(ctx, 1, attrs)
}

// RecordManifestRead records one manifest read attempt.
func RecordManifestRead(ctx context.Context, found bool) {
	if err := initMetrics(); err != nil {
		return
	}
	manifestTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("found", found)))
}

// RecordEdge records one accepted dependency relation.
func RecordEdge(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	edgesRecorded.Add(ctx, 1)
}

// RecordSkip records one excluded dependency, tagged with the reason.
func RecordSkip(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	depsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordLevel records the duration and width of one discovery level.
func RecordLevel(ctx context.Context, level int, width int, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("level", level))
	levelLatency.Record(ctx, duration.Seconds(), attrs)
	levelWidth.Record(ctx, int64(width), attrs)
}
