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

package lockmanager

import (
	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/indexlock"
)

// Stats aggregates the counters of all owned components.
type Stats struct {
	TotalAcquisitions   uint64
	TotalContentions    uint64
	DeadlocksDetected   uint64
	DeadlocksPrevented  uint64
	ActiveRecordLocks   int64
	ActiveIndexReaders  int64
	IndexWritersWaiting int32
	NumaCacheHitRate    float64
}

// Stats returns a point-in-time snapshot. After shutdown it returns a
// zeroed snapshot together with an error, never a partial one.
func (m *Manager) Stats() (Stats, error) {
	if m.shut.Load() {
		return Stats{}, lockerrors.InvalidArgumentf("manager is shut down")
	}

	var readers int64
	var waiting int32
	for typ := indexlock.Type(0); typ < indexlock.NumTypes; typ++ {
		readers += m.indexes[typ].ActiveReaders()
		waiting += m.indexes[typ].WritersWaiting()
	}

	return Stats{
		TotalAcquisitions:   m.totalAcquisitions.Load(),
		TotalContentions:    m.totalContentions.Load(),
		DeadlocksDetected:   m.detector.Detected(),
		DeadlocksPrevented:  m.detector.Prevented(),
		ActiveRecordLocks:   m.table.Active(),
		ActiveIndexReaders:  readers,
		IndexWritersWaiting: waiting,
		NumaCacheHitRate:    m.caches.HitRate(),
	}, nil
}
