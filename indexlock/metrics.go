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

package indexlock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

type Metrics struct {
	enabled        bool
	readOps        *prometheus.CounterVec
	writeOps       *prometheus.CounterVec
	activeReaders  *prometheus.GaugeVec
	writersWaiting *prometheus.GaugeVec
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	if prom == nil {
		return &Metrics{enabled: false}
	}

	return &Metrics{
		enabled:        true,
		readOps:        prom.IndexReadOpsTotal,
		writeOps:       prom.IndexWriteOpsTotal,
		activeReaders:  prom.IndexActiveReaders,
		writersWaiting: prom.IndexWritersWaiting,
	}
}

func (m *Metrics) ReadBegin(typ Type) {
	if !m.enabled {
		return
	}

	m.readOps.WithLabelValues(typ.String()).Inc()
	m.activeReaders.WithLabelValues(typ.String()).Inc()
}

func (m *Metrics) ReadEnd(typ Type) {
	if !m.enabled {
		return
	}

	m.activeReaders.WithLabelValues(typ.String()).Dec()
}

func (m *Metrics) WriterWaiting(typ Type) {
	if !m.enabled {
		return
	}

	m.writersWaiting.WithLabelValues(typ.String()).Inc()
}

func (m *Metrics) WriterDone(typ Type) {
	if !m.enabled {
		return
	}

	m.writersWaiting.WithLabelValues(typ.String()).Dec()
}

func (m *Metrics) WriteBegin(typ Type) {
	if !m.enabled {
		return
	}

	m.writeOps.WithLabelValues(typ.String()).Inc()
}
