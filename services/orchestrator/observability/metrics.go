// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the chat
// pipeline: request counters, stream gauges, latency histograms, and
// retrieval/upsert counters. Exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	chatSubsystem    = "chat"
)

// ChatMetrics holds the Prometheus instruments for chat streaming,
// retrieval, and document upsert. All operations are thread-safe via
// Prometheus's internal locking.
type ChatMetrics struct {
	// RequestsTotal counts chat requests.
	// Labels: endpoint (message, upsert), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open SSE connections.
	ActiveStreams prometheus.Gauge

	// TimeToFirstTokenSeconds measures latency to the first streamed
	// token. Labels: model
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: status (completed, stream_timeout, stream_failure, disconnect)
	StreamDurationSeconds *prometheus.HistogramVec

	// StreamErrorsTotal counts terminal stream errors by wire code.
	// Labels: error_code (stream_timeout, stream_failure)
	StreamErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that vanished mid-stream.
	ClientDisconnectsTotal prometheus.Counter

	// ChunksUpsertedTotal counts document chunks written to the
	// vector store.
	ChunksUpsertedTotal prometheus.Counter
}

// DefaultMetrics is the singleton initialized by InitMetrics.
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all chat metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open SSE connections",
			},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first streamed token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"model"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds by terminal status",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		StreamErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_errors_total",
				Help:      "Terminal stream errors by wire error code",
			},
			[]string{"error_code"},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Clients that disconnected mid-stream",
			},
		),

		ChunksUpsertedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "chunks_upserted_total",
				Help:      "Document chunks written to the vector store",
			},
		),
	}
	return DefaultMetrics
}
