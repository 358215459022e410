package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InventoryAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_adjustments_total",
		Help: "Total number of ledger adjustments by classification",
	}, []string{"event_type"})

	SyncPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Total number of per-SKU distribution passes",
	})

	SyncPassLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_pass_latency_seconds",
		Help:    "Latency of per-SKU distribution passes",
		Buckets: prometheus.DefBuckets,
	})

	ChannelPushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_pushes_total",
		Help: "Total number of channel push attempts by outcome",
	}, []string{"platform", "result"})

	OversellIncidentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oversell_incidents_total",
		Help: "Total number of push failures while no stock was available",
	})

	SyncCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_cycles_total",
		Help: "Total number of completed reconciliation cycles",
	})

	SyncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_cycle_duration_seconds",
		Help:    "Duration of reconciliation cycles",
		Buckets: prometheus.DefBuckets,
	})

	SyncCyclesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_cycles_skipped_total",
		Help: "Total number of ticks skipped because a cycle was still running",
	})

	DriftDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drift_detected_total",
		Help: "Total number of mappings found drifted during reconciliation",
	})

	IngressEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_events_total",
		Help: "Total number of broker events consumed by outcome",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
