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
	"time"

	"github.com/weaviate/vectorlock/entities/lockorder"
)

// node wraps one lock's identity in the dependency graph. Nodes are
// created the first time a lock participates in a recorded dependency and
// dropped when the lock is destroyed.
type node struct {
	id        uint64
	level     lockorder.Level
	owner     uint64
	createdAt time.Time

	// out maps target node id to the edge "this lock was held while the
	// target was acquired"; in holds the reverse direction for cheap
	// node removal
	out map[uint64]*edge
	in  map[uint64]struct{}
}

// edge is the directed dependency "from was acquired first, to was
// acquired while from was held". An edge is only ever inserted after
// confirming it does not close a cycle.
type edge struct {
	from      uint64
	to        uint64
	weight    uint64
	createdAt time.Time
}

// cycle is an ordered node list discovered by the sweep, at most
// maxSearchDepth long. Shorter cycles are resolved first.
type cycle struct {
	nodes      []uint64
	detectedAt time.Time
}

func newNode(id uint64, level lockorder.Level, owner uint64) *node {
	return &node{
		id:        id,
		level:     level,
		owner:     owner,
		createdAt: time.Now(),
		out:       map[uint64]*edge{},
		in:        map[uint64]struct{}{},
	}
}
