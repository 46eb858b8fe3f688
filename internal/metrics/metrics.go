// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TelemetryIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_telemetry_ingested_total",
			Help: "Telemetry readings persisted",
		},
	)

	// DecodeAttempts counts decode stage outcomes; result is "hit" or "miss".
	DecodeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_decode_attempts_total",
			Help: "Decode pipeline stage attempts by outcome",
		},
		[]string{"stage", "result"},
	)

	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_decode_failures_total",
			Help: "Images that produced no code, by reason",
		},
		[]string{"reason"},
	)

	ScansCorrelated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_scans_correlated_total",
			Help: "Scans persisted and correlated, split by first sighting",
		},
		[]string{"new"},
	)

	InventoryMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_inventory_mutations_total",
			Help: "Inventory ledger mutations by operation",
		},
		[]string{"op"},
	)

	BroadcastPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_broadcast_published_total",
			Help: "Events accepted by the fan-out queue",
		},
		[]string{"topic"},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_broadcast_dropped_total",
			Help: "Events or deliveries dropped by the fan-out",
		},
		[]string{"reason"},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockroom_broadcast_subscribers",
			Help: "Currently connected fan-out subscribers",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockroom_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
