// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package metrics defines the Prometheus instrumentation for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the current number of queued location updates.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locsync_queue_depth",
		Help: "Current number of queued location updates",
	})

	// QueueEnqueues counts updates durably added to the offline queue.
	QueueEnqueues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_queue_enqueues_total",
		Help: "Total number of location updates added to the offline queue",
	})

	// QueueDrains counts completed drain passes.
	QueueDrains = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_queue_drains_total",
		Help: "Total number of completed queue drain passes",
	})

	// QueueDelivered counts queued updates successfully delivered.
	QueueDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_queue_delivered_total",
		Help: "Total number of queued updates delivered to the server",
	})

	// QueueOverflowDrops counts entries dropped by the size-bound policy.
	// This is the observable form of the queue-overflow condition; drops are
	// never silent.
	QueueOverflowDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_queue_overflow_drops_total",
		Help: "Total number of queued updates dropped by the size-bound policy",
	})

	// GatewayRequests counts gateway calls by operation and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locsync_gateway_requests_total",
		Help: "Total number of gateway requests by operation and outcome",
	}, []string{"operation", "outcome"})

	// GatewayRetries counts retry attempts made by the gateway.
	GatewayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_gateway_retries_total",
		Help: "Total number of gateway retry attempts",
	})

	// GatewayLatency measures gateway request latency per operation.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "locsync_gateway_latency_seconds",
		Help:    "Gateway request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// PollResults counts poll passes by result (fresh or cache_fallback).
	PollResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locsync_poll_results_total",
		Help: "Total number of peer-location polls by result",
	}, []string{"result"})

	// CacheWrites counts write-through cache writes of fetched samples.
	CacheWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_cache_writes_total",
		Help: "Total number of peer samples written through to the local store",
	})

	// ReachabilityOnline is 1 when the device is considered online.
	ReachabilityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locsync_reachability_online",
		Help: "1 when the device is considered online, 0 otherwise",
	})

	// BreakerState tracks circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "locsync_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})
)
