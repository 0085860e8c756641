// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the Prometheus collectors for chat streams and
// the development backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client-side stream metrics.
var (
	// StreamsTotal counts finished turns by outcome:
	// done, failed, aborted, cancelled.
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_streams_total",
			Help: "Total number of chat turns by terminal outcome",
		},
		[]string{"outcome"},
	)

	// StreamOpenErrors counts failed opens by class:
	// usage_limit, fatal, retriable.
	StreamOpenErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_stream_open_errors_total",
			Help: "Total number of stream open failures by error class",
		},
		[]string{"class"},
	)

	// FramesTotal counts decoded frames by kind: text, done, error.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_frames_total",
			Help: "Total number of stream frames by sentinel kind",
		},
		[]string{"kind"},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatstream_stream_duration_seconds",
			Help:    "Duration of chat turns from submit to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatstream_active_streams",
			Help: "Number of chat turns currently streaming",
		},
	)

	// SubmitsRejected counts submissions refused before any request was
	// made, by reason: empty, busy, closed.
	SubmitsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_submits_rejected_total",
			Help: "Total number of rejected submissions by reason",
		},
		[]string{"reason"},
	)
)

// Development backend metrics.
var (
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_backend_requests_total",
			Help: "Total number of requests served by the development backend",
		},
		[]string{"route", "status"},
	)

	BackendRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatstream_backend_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
