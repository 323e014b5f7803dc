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

package locktable

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

type Metrics struct {
	enabled      bool
	shared       prometheus.Counter
	exclusive    prometheus.Counter
	contentions  prometheus.Counter
	waitDuration prometheus.Observer
	active       prometheus.Gauge
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	if prom == nil {
		return &Metrics{enabled: false}
	}

	return &Metrics{
		enabled:      true,
		shared:       prom.LockAcquisitionsTotal.WithLabelValues("shared"),
		exclusive:    prom.LockAcquisitionsTotal.WithLabelValues("exclusive"),
		contentions:  prom.LockContentionsTotal,
		waitDuration: prom.LockWaitDuration,
		active:       prom.ActiveRecordLocks,
	}
}

func (m *Metrics) Acquisition(exclusive bool, wait time.Duration) {
	if !m.enabled {
		return
	}

	if exclusive {
		m.exclusive.Inc()
	} else {
		m.shared.Inc()
	}
	m.waitDuration.Observe(wait.Seconds())
}

func (m *Metrics) Contention() {
	if !m.enabled {
		return
	}

	m.contentions.Inc()
}

func (m *Metrics) LockAdded() {
	if !m.enabled {
		return
	}

	m.active.Inc()
}

func (m *Metrics) LockRemoved() {
	if !m.enabled {
		return
	}

	m.active.Dec()
}
