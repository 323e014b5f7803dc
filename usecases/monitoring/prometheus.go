//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package monitoring holds the prometheus collectors shared by all locking
// components. Construct once with NewPrometheusMetrics and inject; a nil
// *PrometheusMetrics disables metrics in every component.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	Registerer prometheus.Registerer

	LockAcquisitionsTotal *prometheus.CounterVec
	LockContentionsTotal  prometheus.Counter
	LockWaitDuration      prometheus.Histogram
	ActiveRecordLocks     prometheus.Gauge

	IndexReadOpsTotal   *prometheus.CounterVec
	IndexWriteOpsTotal  *prometheus.CounterVec
	IndexActiveReaders  *prometheus.GaugeVec
	IndexWritersWaiting *prometheus.GaugeVec

	NumaCacheHitsTotal   *prometheus.CounterVec
	NumaCacheMissesTotal *prometheus.CounterVec

	DeadlocksDetectedTotal  prometheus.Counter
	DeadlocksPreventedTotal prometheus.Counter
	DependencyGraphNodes    prometheus.Gauge
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noopRegisterer{}
	}

	pm := &PrometheusMetrics{
		Registerer: reg,

		LockAcquisitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlock_record_acquisitions_total",
			Help: "Record lock acquisitions by mode",
		}, []string{"mode"}),
		LockContentionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorlock_record_contentions_total",
			Help: "Record lock acquisitions that did not succeed on first try",
		}),
		LockWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vectorlock_record_wait_seconds",
			Help:    "Time spent waiting for record locks",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
		ActiveRecordLocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vectorlock_record_locks_active",
			Help: "Record lock entries currently present in the table",
		}),

		IndexReadOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlock_index_read_ops_total",
			Help: "Versioned-read sections entered per index structure",
		}, []string{"index_type"}),
		IndexWriteOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlock_index_write_ops_total",
			Help: "Exclusive write sections entered per index structure",
		}, []string{"index_type"}),
		IndexActiveReaders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vectorlock_index_readers_active",
			Help: "Readers currently inside a versioned-read section",
		}, []string{"index_type"}),
		IndexWritersWaiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vectorlock_index_writers_waiting",
			Help: "Writers currently waiting for readers to drain",
		}, []string{"index_type"}),

		NumaCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlock_numa_cache_hits_total",
			Help: "NUMA lock cache hits per locality domain",
		}, []string{"domain"}),
		NumaCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlock_numa_cache_misses_total",
			Help: "NUMA lock cache misses per locality domain",
		}, []string{"domain"}),

		DeadlocksDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorlock_deadlocks_detected_total",
			Help: "Cycles found and resolved by the background sweep",
		}),
		DeadlocksPreventedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorlock_deadlocks_prevented_total",
			Help: "Dependency edges rejected at insertion time",
		}),
		DependencyGraphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vectorlock_dependency_graph_nodes",
			Help: "Nodes currently tracked in the lock dependency graph",
		}),
	}

	reg.MustRegister(
		pm.LockAcquisitionsTotal, pm.LockContentionsTotal,
		pm.LockWaitDuration, pm.ActiveRecordLocks,
		pm.IndexReadOpsTotal, pm.IndexWriteOpsTotal,
		pm.IndexActiveReaders, pm.IndexWritersWaiting,
		pm.NumaCacheHitsTotal, pm.NumaCacheMissesTotal,
		pm.DeadlocksDetectedTotal, pm.DeadlocksPreventedTotal,
		pm.DependencyGraphNodes,
	)

	return pm
}

// noopRegisterer is used when monitoring is disabled, so collectors can be
// constructed unconditionally.
type noopRegisterer struct{}

func (noopRegisterer) Register(prometheus.Collector) error  { return nil }
func (noopRegisterer) MustRegister(...prometheus.Collector) {}
func (noopRegisterer) Unregister(prometheus.Collector) bool { return true }
