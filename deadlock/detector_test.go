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
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return New(logger, NewMetrics(nil))
}

// injectEdge builds graph state directly, simulating dependencies that
// bypassed the opportunistic check.
func (d *Detector) injectEdge(t *testing.T, from, to uint64,
	levelFrom, levelTo lockorder.Level,
) {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	nf, ok := d.nodes[from]
	if !ok {
		nf = d.addNode(from, levelFrom, 0)
	}
	nt, ok := d.nodes[to]
	if !ok {
		nt = d.addNode(to, levelTo, 0)
	}

	nf.out[to] = &edge{from: from, to: to, weight: 1, createdAt: time.Now()}
	nt.in[from] = struct{}{}
	d.edges++
}

func (d *Detector) hasEdge(from, to uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[from]
	if !ok {
		return false
	}
	_, ok = n.out[to]
	return ok
}

func TestCheckDependency_AcceptsAcyclic(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelIndex, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(2, 3,
		lockorder.LevelRecord, lockorder.LevelMetadata, 0))

	assert.Equal(t, 3, d.NodeCount())
	assert.Equal(t, 2, d.EdgeCount())
	assert.Equal(t, uint64(0), d.Prevented())
}

func TestCheckDependency_RejectsTwoNodeCycle(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))

	err := d.CheckDependency(2, 1,
		lockorder.LevelRecord, lockorder.LevelRecord, 0)
	require.ErrorIs(t, err, lockerrors.ErrWouldDeadlock)

	assert.Equal(t, uint64(1), d.Prevented())
	// the rejected edge must not have been recorded
	assert.Equal(t, 1, d.EdgeCount())
}

func TestCheckDependency_RejectsTransitiveCycle(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelIndex, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(2, 3,
		lockorder.LevelRecord, lockorder.LevelMetadata, 0))

	err := d.CheckDependency(3, 1,
		lockorder.LevelMetadata, lockorder.LevelIndex, 0)
	require.ErrorIs(t, err, lockerrors.ErrWouldDeadlock)
}

func TestCheckDependency_DuplicateEdgeBumpsWeight(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))

	assert.Equal(t, 1, d.EdgeCount())

	d.mu.Lock()
	assert.Equal(t, uint64(2), d.nodes[1].out[2].weight)
	d.mu.Unlock()
}

func TestCheckDependency_SelfDependency(t *testing.T) {
	d := newTestDetector(t)

	err := d.CheckDependency(5, 5,
		lockorder.LevelRecord, lockorder.LevelRecord, 0)
	require.ErrorIs(t, err, lockerrors.ErrInvalidArgument)
}

func TestCheckDependency_Disabled(t *testing.T) {
	d := newTestDetector(t)
	d.SetEnabled(false)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(2, 1,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))

	// nothing recorded while disabled
	assert.Equal(t, 0, d.NodeCount())
}

func TestSweep_AcyclicGraphIsUntouched(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelIndex, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(1, 3,
		lockorder.LevelIndex, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(2, 4,
		lockorder.LevelRecord, lockorder.LevelMetadata, 0))
	require.NoError(t, d.CheckDependency(3, 4,
		lockorder.LevelRecord, lockorder.LevelMetadata, 0))

	nodes, edges := d.NodeCount(), d.EdgeCount()

	// deterministic across repeated sweeps, no mutation
	for i := 0; i < 3; i++ {
		assert.False(t, d.SweepCycle())
		assert.Equal(t, nodes, d.NodeCount())
		assert.Equal(t, edges, d.EdgeCount())
	}
	assert.Equal(t, uint64(0), d.Detected())
}

func TestSweep_ResolvesInjectedCycle(t *testing.T) {
	d := newTestDetector(t)

	d.injectEdge(t, 1, 2, lockorder.LevelRecord, lockorder.LevelRecord)
	d.injectEdge(t, 2, 1, lockorder.LevelRecord, lockorder.LevelRecord)

	assert.True(t, d.SweepCycle())
	assert.Equal(t, uint64(1), d.Detected())

	// the cycle is gone, a further sweep finds nothing
	assert.False(t, d.SweepCycle())
	assert.Equal(t, 1, d.EdgeCount())
}

func TestSweep_BreaksLargestLevelDistanceEdge(t *testing.T) {
	d := newTestDetector(t)

	// distances: 1->2 is 3 levels, 2->3 is 2, 3->1 is 1; the first edge
	// looks most like an ordering violation and must be the one broken
	d.injectEdge(t, 1, 2, lockorder.LevelGlobal, lockorder.LevelRecord)
	d.injectEdge(t, 2, 3, lockorder.LevelRecord, lockorder.LevelIndex)
	d.injectEdge(t, 3, 1, lockorder.LevelIndex, lockorder.LevelGlobal)

	assert.True(t, d.SweepCycle())

	assert.False(t, d.hasEdge(1, 2))
	assert.True(t, d.hasEdge(2, 3))
	assert.True(t, d.hasEdge(3, 1))
}

func TestSweep_OverlappingCyclesNeedIterations(t *testing.T) {
	d := newTestDetector(t)

	// two cycles sharing node 1
	d.injectEdge(t, 1, 2, lockorder.LevelRecord, lockorder.LevelRecord)
	d.injectEdge(t, 2, 1, lockorder.LevelRecord, lockorder.LevelRecord)
	d.injectEdge(t, 1, 3, lockorder.LevelRecord, lockorder.LevelRecord)
	d.injectEdge(t, 3, 1, lockorder.LevelRecord, lockorder.LevelRecord)

	assert.True(t, d.SweepCycle())
	assert.Equal(t, uint64(2), d.Detected())
	assert.False(t, d.SweepCycle())
}

func TestSweep_CycleBeyondDepthBoundUndetected(t *testing.T) {
	d := newTestDetector(t)

	// ring longer than the traversal bound, documented limitation
	const ringSize = maxSearchDepth + 8
	for i := 0; i < ringSize; i++ {
		from := uint64(i + 1)
		to := uint64((i+1)%ringSize + 1)
		d.injectEdge(t, from, to, lockorder.LevelRecord, lockorder.LevelRecord)
	}

	assert.False(t, d.SweepCycle())
	assert.Equal(t, uint64(0), d.Detected())
}

func TestCheckDependency_NodeCapacity(t *testing.T) {
	d := newTestDetector(t)

	// fill the graph with disjoint pairs up to exactly the node limit
	for i := 0; i < maxNodes/2; i++ {
		a, b := uint64(2*i+1), uint64(2*i+2)
		require.NoError(t, d.CheckDependency(a, b,
			lockorder.LevelRecord, lockorder.LevelRecord, 0))
	}
	require.Equal(t, maxNodes, d.NodeCount())

	// a dependency needing fresh nodes is refused, the graph stays put
	err := d.CheckDependency(maxNodes+100, maxNodes+101,
		lockorder.LevelRecord, lockorder.LevelRecord, 0)
	require.ErrorIs(t, err, lockerrors.ErrResourceExhausted)
	assert.Equal(t, maxNodes, d.NodeCount())

	// one existing endpoint does not help, the other still needs a node
	err = d.CheckDependency(1, maxNodes+102,
		lockorder.LevelRecord, lockorder.LevelRecord, 0)
	require.ErrorIs(t, err, lockerrors.ErrResourceExhausted)
	assert.Equal(t, maxNodes, d.NodeCount())

	// edges between existing nodes are still accepted at the node limit
	require.NoError(t, d.CheckDependency(2, 3,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))
	// and duplicates still bump their weight
	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))
}

func TestCheckDependency_EdgeCapacity(t *testing.T) {
	d := newTestDetector(t)

	d.mu.Lock()
	d.edges = maxEdges
	d.mu.Unlock()

	// a refused edge must not leave its endpoint nodes behind
	err := d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0)
	require.ErrorIs(t, err, lockerrors.ErrResourceExhausted)
	assert.Equal(t, 0, d.NodeCount())
}

func TestRemoveLock(t *testing.T) {
	d := newTestDetector(t)

	require.NoError(t, d.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))
	require.NoError(t, d.CheckDependency(2, 3,
		lockorder.LevelRecord, lockorder.LevelRecord, 0))

	d.RemoveLock(2)

	assert.Equal(t, 2, d.NodeCount())
	assert.Equal(t, 0, d.EdgeCount())

	// removing an unknown lock is a no-op
	d.RemoveLock(99)
	assert.Equal(t, 2, d.NodeCount())
}
