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

package deadlock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

type Metrics struct {
	enabled   bool
	detected  prometheus.Counter
	prevented prometheus.Counter
	nodes     prometheus.Gauge
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	if prom == nil {
		return &Metrics{enabled: false}
	}

	return &Metrics{
		enabled:   true,
		detected:  prom.DeadlocksDetectedTotal,
		prevented: prom.DeadlocksPreventedTotal,
		nodes:     prom.DependencyGraphNodes,
	}
}

func (m *Metrics) Detected(n int) {
	if !m.enabled {
		return
	}

	m.detected.Add(float64(n))
}

func (m *Metrics) Prevented() {
	if !m.enabled {
		return
	}

	m.prevented.Inc()
}

func (m *Metrics) NodeAdded() {
	if !m.enabled {
		return
	}

	m.nodes.Inc()
}

func (m *Metrics) NodeRemoved() {
	if !m.enabled {
		return
	}

	m.nodes.Dec()
}
