// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusPoolTxns     prometheus.Gauge
	prometheusPoolBytes    prometheus.Gauge
	prometheusTxAccepted   prometheus.Counter
	prometheusTxRejected   prometheus.Counter
	prometheusTxRemoved    *prometheus.CounterVec
	prometheusPackagesSeen *prometheus.CounterVec

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusPoolTxns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "transactions",
			Help:      "Number of transactions in the mempool",
		},
	)
	prometheusPoolBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "bytes",
			Help:      "Total serialized size of the transactions in the mempool",
		},
	)
	prometheusTxAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "accepted",
			Help:      "Number of transactions added to the mempool",
		},
	)
	prometheusTxRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "rejected",
			Help:      "Number of transactions added to the recently rejected filter",
		},
	)
	prometheusTxRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "removed",
			Help:      "Number of transactions removed from the mempool",
		},
		[]string{
			"reason", // see RemovalReason
		},
	)
	prometheusPackagesSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xecd",
			Subsystem: "mempool",
			Name:      "packages",
			Help:      "Number of packages processed",
		},
		[]string{
			"result", // accepted or rejected
		},
	)
}
