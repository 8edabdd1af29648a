// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package metrics registers the Prometheus collectors Nexus exposes on
// GET /metrics, using the standard package-level CounterVec/HistogramVec
// plus init()-registration pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_requests_total",
			Help: "Total number of chat/embeddings requests processed by the gateway",
		},
		[]string{"backend_id", "status"},
	)
	RequestDurationMillis = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_request_duration_milliseconds",
			Help:    "Request duration in milliseconds, by backend",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"backend_id"},
	)
	RoutingRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_routing_rejections_total",
			Help: "Total number of requests rejected by the reconciler pipeline, by stage",
		},
		[]string{"reconciler"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_queue_depth",
			Help: "Current depth of the capacity-overflow request queue",
		},
	)
	BackendPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_backend_pending_requests",
			Help: "Current in-flight request count per backend",
		},
		[]string{"backend_id"},
	)
	BudgetSpendCents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_budget_spend_cents",
			Help: "Cumulative spend in cents for the current billing cycle",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMillis)
	prometheus.MustRegister(RoutingRejectionsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(BackendPending)
	prometheus.MustRegister(BudgetSpendCents)
}
