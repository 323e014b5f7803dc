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

// Package deadlock maintains the directed graph of "lock B was acquired
// while lock A was held" dependencies. Cycles are rejected at edge
// insertion time (prevention); a periodic sweep finds and resolves any
// cycle that slipped past the opportunistic check (detection).
package deadlock

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
)

const (
	// maxSearchDepth bounds every traversal so a sweep terminates even on
	// a degenerate graph. Cycles longer than this are not detected by the
	// sweep; insertion-time rejection still prevents them from forming
	// through CheckDependency.
	maxSearchDepth = 32

	// maxSweepIterations caps the resolve-and-rescan loop of a single
	// sweep. Breaking one edge per cycle is not guaranteed to clear
	// overlapping cycles in one pass.
	maxSweepIterations = 8

	// allocation bounds, exceeding them fails with ResourceExhausted
	// instead of growing without limit
	maxNodes = 16384
	maxEdges = 65536

	// DefaultSweepInterval is the period of the background cycle sweep.
	DefaultSweepInterval = 100 * time.Millisecond
)

// Detector owns the dependency graph. A single detector-wide mutex guards
// all mutation: the graph is small and updated far less often than record
// locks are acquired, so finer granularity would buy nothing.
type Detector struct {
	mu    sync.Mutex
	nodes map[uint64]*node
	edges int

	enabled atomic.Bool

	detected  atomic.Uint64
	prevented atomic.Uint64

	logger  logrus.FieldLogger
	metrics *Metrics
}

func New(logger logrus.FieldLogger, metrics *Metrics) *Detector {
	d := &Detector{
		nodes:   map[uint64]*node{},
		logger:  logger.WithField("component", "deadlock"),
		metrics: metrics,
	}
	d.enabled.Store(true)
	return d
}

// SetEnabled toggles both the opportunistic check and the background
// sweep. While disabled, CheckDependency accepts everything without
// recording it.
func (d *Detector) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

func (d *Detector) Enabled() bool {
	return d.enabled.Load()
}

// CheckDependency records that lockB is about to be acquired while lockA
// is held. If the new edge would close a cycle the edge is rejected with
// ErrWouldDeadlock and nothing is recorded, which is the actual
// deadlock-prevention mechanism.
func (d *Detector) CheckDependency(lockA, lockB uint64,
	levelA, levelB lockorder.Level, owner uint64,
) error {
	if !d.enabled.Load() {
		return nil
	}
	if lockA == lockB {
		return lockerrors.InvalidArgumentf("self dependency on lock %d", lockA)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	na, okA := d.nodes[lockA]
	nb, okB := d.nodes[lockB]

	if okA {
		if e, ok := na.out[lockB]; ok {
			e.weight++
			return nil
		}
	}

	// lockA reachable from lockB means a path B -> ... -> A exists, the
	// new edge A -> B would close it into a cycle. Such a path requires
	// both nodes to be present already.
	if okA && okB && d.reachable(nb, lockA, maxSearchDepth) {
		d.prevented.Add(1)
		d.metrics.Prevented()
		d.logger.WithFields(logrus.Fields{
			"lock_a": lockA,
			"lock_b": lockB,
		}).Debug("rejected dependency edge, would close a cycle")
		return lockerrors.WouldDeadlockf("edge %d -> %d", lockA, lockB)
	}

	// check every limit before creating anything, a rejected dependency
	// must leave no trace in the graph
	if d.edges >= maxEdges {
		return lockerrors.ResourceExhaustedf("dependency edges at limit %d",
			maxEdges)
	}
	missing := 0
	if !okA {
		missing++
	}
	if !okB {
		missing++
	}
	if len(d.nodes)+missing > maxNodes {
		return lockerrors.ResourceExhaustedf("dependency nodes at limit %d",
			maxNodes)
	}

	if !okA {
		na = d.addNode(lockA, levelA, owner)
	}
	if !okB {
		nb = d.addNode(lockB, levelB, owner)
	}

	na.out[lockB] = &edge{
		from:      lockA,
		to:        lockB,
		weight:    1,
		createdAt: time.Now(),
	}
	nb.in[lockA] = struct{}{}
	d.edges++
	return nil
}

// addNode inserts a fresh node. Caller holds d.mu and has verified the
// node count is below the limit.
func (d *Detector) addNode(id uint64, level lockorder.Level,
	owner uint64,
) *node {
	n := newNode(id, level, owner)
	d.nodes[id] = n
	d.metrics.NodeAdded()
	return n
}

// reachable performs a bounded-depth depth-first search from start looking
// for target. Caller holds d.mu.
func (d *Detector) reachable(start *node, target uint64, depth int) bool {
	if depth <= 0 {
		return false
	}
	for to := range start.out {
		if to == target {
			return true
		}
		next, ok := d.nodes[to]
		if !ok {
			continue
		}
		if d.reachable(next, target, depth-1) {
			return true
		}
	}
	return false
}

// RemoveLock drops the node of a destroyed lock together with all its
// edges.
func (d *Detector) RemoveLock(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[id]
	if !ok {
		return
	}

	for to := range n.out {
		if target, ok := d.nodes[to]; ok {
			delete(target.in, id)
		}
		d.edges--
	}
	for from := range n.in {
		if source, ok := d.nodes[from]; ok {
			if _, had := source.out[id]; had {
				delete(source.out, id)
				d.edges--
			}
		}
	}

	delete(d.nodes, id)
	d.metrics.NodeRemoved()
}

// SweepCycle runs one full detection pass: find all cycles up to
// maxSearchDepth, resolve them shortest-first, rescan, until the graph is
// clean or the iteration cap is hit. Registered as the background cycle
// callback; returns whether any cycle was resolved. On an acyclic graph
// the sweep is read-only.
func (d *Detector) SweepCycle() bool {
	if !d.enabled.Load() {
		return false
	}

	resolvedAny := false
	for iter := 0; iter < maxSweepIterations; iter++ {
		cycles := d.findCycles()
		if len(cycles) == 0 {
			break
		}

		// shorter cycles first, breaking them may already clear longer
		// overlapping ones
		sort.Slice(cycles, func(i, j int) bool {
			return len(cycles[i].nodes) < len(cycles[j].nodes)
		})

		resolved := 0
		d.mu.Lock()
		for _, cyc := range cycles {
			if d.resolveCycle(cyc) {
				resolved++
			}
		}
		d.mu.Unlock()

		if resolved == 0 {
			break
		}
		d.detected.Add(uint64(resolved))
		d.metrics.Detected(resolved)
		d.logger.WithFields(logrus.Fields{
			"cycles":    len(cycles),
			"resolved":  resolved,
			"iteration": iter,
		}).Warn("resolved lock dependency cycles")
		resolvedAny = true
	}
	return resolvedAny
}

// findCycles snapshots the adjacency under the mutex, then searches from
// every root in parallel. Working on a snapshot keeps the mutex hold time
// independent of graph shape; a cycle broken concurrently is re-verified
// during resolution.
func (d *Detector) findCycles() []cycle {
	d.mu.Lock()
	adjacency := make(map[uint64][]uint64, len(d.nodes))
	roots := make([]uint64, 0, len(d.nodes))
	for id, n := range d.nodes {
		targets := make([]uint64, 0, len(n.out))
		for to := range n.out {
			targets = append(targets, to)
		}
		adjacency[id] = targets
		roots = append(roots, id)
	}
	d.mu.Unlock()

	var (
		resultLock sync.Mutex
		cycles     []cycle
		seen       = map[string]struct{}{}
	)

	eg := &errgroup.Group{}
	eg.SetLimit(runtime.GOMAXPROCS(0))

	for _, root := range roots {
		root := root
		eg.Go(func() error {
			found := searchFromRoot(root, adjacency)
			if len(found) == 0 {
				return nil
			}

			resultLock.Lock()
			defer resultLock.Unlock()
			for _, cyc := range found {
				key := cycleKey(cyc.nodes)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				cycles = append(cycles, cyc)
			}
			return nil
		})
	}
	eg.Wait()

	return cycles
}

// searchFromRoot runs a depth-first search with a recursion-stack
// membership test, collecting every cycle of length <= maxSearchDepth
// reachable from the root.
func searchFromRoot(root uint64, adjacency map[uint64][]uint64) []cycle {
	var (
		cycles  []cycle
		stack   []uint64
		onStack = map[uint64]int{}
		done    = map[uint64]struct{}{}
	)

	var visit func(id uint64)
	visit = func(id uint64) {
		if len(stack) >= maxSearchDepth {
			return
		}
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, to := range adjacency[id] {
			if pos, cycling := onStack[to]; cycling {
				nodes := make([]uint64, len(stack)-pos)
				copy(nodes, stack[pos:])
				cycles = append(cycles, cycle{
					nodes:      nodes,
					detectedAt: time.Now(),
				})
				continue
			}
			if _, finished := done[to]; finished {
				continue
			}
			visit(to)
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		done[id] = struct{}{}
	}

	visit(root)
	return cycles
}

// resolveCycle breaks one cycle by deleting the edge with the largest
// absolute ordering-level difference between its endpoints, on the theory
// that out-of-order edges are the most likely accidental violations.
// Caller holds d.mu. Returns false if the cycle no longer exists.
func (d *Detector) resolveCycle(cyc cycle) bool {
	n := len(cyc.nodes)
	if n < 2 {
		return false
	}

	var (
		bestFrom, bestTo *node
		bestDistance     = -1
	)
	for i := 0; i < n; i++ {
		from, okFrom := d.nodes[cyc.nodes[i]]
		to, okTo := d.nodes[cyc.nodes[(i+1)%n]]
		if !okFrom || !okTo {
			return false
		}
		if _, ok := from.out[to.id]; !ok {
			// already broken by a previous resolution in this sweep
			return false
		}
		if dist := lockorder.Distance(from.level, to.level); dist > bestDistance {
			bestDistance = dist
			bestFrom, bestTo = from, to
		}
	}

	delete(bestFrom.out, bestTo.id)
	delete(bestTo.in, bestFrom.id)
	d.edges--
	d.logger.WithFields(logrus.Fields{
		"from":           bestFrom.id,
		"to":             bestTo.id,
		"level_distance": bestDistance,
	}).Debug("broke dependency edge to resolve cycle")
	return true
}

func cycleKey(nodes []uint64) string {
	// rotate so the smallest id leads, equal cycles discovered from
	// different roots collapse onto one key
	minIdx := 0
	for i, id := range nodes {
		if id < nodes[minIdx] {
			minIdx = i
		}
	}
	var b []byte
	for i := range nodes {
		id := nodes[(minIdx+i)%len(nodes)]
		b = appendUint(b, id)
		b = append(b, '>')
	}
	return string(b)
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}

// Stats

func (d *Detector) Detected() uint64  { return d.detected.Load() }
func (d *Detector) Prevented() uint64 { return d.prevented.Load() }

func (d *Detector) NodeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.nodes)
}

func (d *Detector) EdgeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.edges
}
