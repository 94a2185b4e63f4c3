// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlocksConnected    prometheus.Counter
	prometheusBlocksDisconnected prometheus.Counter
	prometheusReorgs             prometheus.Counter
	prometheusBlocksParked       prometheus.Counter
	prometheusBlocksInvalidated  prometheus.Counter
	prometheusTipHeight          prometheus.Gauge
	prometheusUtxoCacheSize      prometheus.Gauge
	prometheusUtxoCacheEntries   prometheus.Gauge
	prometheusFlushes            *prometheus.CounterVec
	prometheusFilesPruned        prometheus.Counter

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlocksConnected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "blocks_connected",
			Help:      "Number of blocks connected to the active chain",
		},
	)
	prometheusBlocksDisconnected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "blocks_disconnected",
			Help:      "Number of blocks disconnected from the active chain",
		},
	)
	prometheusReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "reorganizations",
			Help:      "Number of chain reorganizations",
		},
	)
	prometheusBlocksParked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "blocks_parked",
			Help:      "Number of blocks parked",
		},
	)
	prometheusBlocksInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "blocks_invalidated",
			Help:      "Number of blocks marked as failed validation",
		},
	)
	prometheusTipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "tip_height",
			Help:      "Height of the active chain tip",
		},
	)
	prometheusUtxoCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xecd",
			Subsystem: "utxo",
			Name:      "cache_bytes",
			Help:      "Approximate memory used by the utxo cache",
		},
	)
	prometheusUtxoCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xecd",
			Subsystem: "utxo",
			Name:      "cache_entries",
			Help:      "Number of entries held by the utxo cache",
		},
	)
	prometheusFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "chain",
			Name:      "flushes",
			Help:      "Number of state flushes to disk",
		},
		[]string{
			"kind", // full or index
		},
	)
	prometheusFilesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "blockstore",
			Name:      "files_pruned",
			Help:      "Number of block files pruned",
		},
	)
}
