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

// Package indexlock protects the small number of shared index structures
// (HNSW graph, LSH tables, ...) with a versioned-read / exclusive-write
// protocol. Readers never block writers from queueing and are never blocked
// by a waiting writer; writers drain in-flight readers before mutating and
// bump a generation counter readers can validate against.
package indexlock

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
	"github.com/weaviate/vectorlock/lockfree"
)

// IndexLock is the lock of one shared index structure. The generation is
// odd exactly while a writer is inside the critical section, so optimistic
// readers can detect a concurrent mutation by comparing an even snapshot
// before and after their read.
type IndexLock struct {
	typ Type

	generation     atomic.Uint64
	readers        atomic.Int64
	writersWaiting atomic.Int32

	// gate serializes writers and makes WriteBegin cancellable, a plain
	// mutex cannot be abandoned on context expiry
	gate chan struct{}

	readOps  atomic.Uint64
	writeOps atomic.Uint64

	logger  logrus.FieldLogger
	metrics *Metrics
}

func New(typ Type, logger logrus.FieldLogger, metrics *Metrics) *IndexLock {
	il := &IndexLock{
		typ:     typ,
		gate:    make(chan struct{}, 1),
		logger:  logger.WithField("index_type", typ.String()),
		metrics: metrics,
	}
	il.gate <- struct{}{}
	return il
}

func (il *IndexLock) Type() Type { return il.typ }

// Level is the fixed ordering rank of the index lock class.
func (il *IndexLock) Level() lockorder.Level { return lockorder.LevelIndex }

// ReadBegin enters a read-only critical section. It never blocks and
// cannot be starved by a waiting writer.
func (il *IndexLock) ReadBegin() {
	lockorder.OnAcquire(lockorder.LevelIndex)
	il.readers.Add(1)
	il.readOps.Add(1)
	il.metrics.ReadBegin(il.typ)
}

// ReadEnd leaves the read-only critical section.
func (il *IndexLock) ReadEnd() {
	il.readers.Add(-1)
	il.metrics.ReadEnd(il.typ)
	lockorder.OnRelease(lockorder.LevelIndex)
}

// WriteBegin acquires exclusive write access: it serializes against other
// writers, then waits for all in-flight readers to drain before bumping
// the generation to its odd, write-in-progress state. The wait is
// cooperative and cancellable through the context.
func (il *IndexLock) WriteBegin(ctx context.Context) error {
	select {
	case <-il.gate:
	case <-ctx.Done():
		return il.cancelErr(ctx)
	}

	lockorder.OnAcquire(lockorder.LevelIndex)
	il.writersWaiting.Add(1)
	il.metrics.WriterWaiting(il.typ)

	for il.readers.Load() > 0 {
		select {
		case <-ctx.Done():
			il.writersWaiting.Add(-1)
			il.metrics.WriterDone(il.typ)
			lockorder.OnRelease(lockorder.LevelIndex)
			il.gate <- struct{}{}
			return il.cancelErr(ctx)
		default:
		}
		runtime.Gosched()
	}

	lfc := lockfree.NewContext(0)
	lfc.FetchAdd(&il.generation, 1)
	il.writersWaiting.Add(-1)
	il.metrics.WriterDone(il.typ)
	il.writeOps.Add(1)
	il.metrics.WriteBegin(il.typ)
	return nil
}

// WriteEnd publishes the mutation by bumping the generation back to even
// and releases the writer gate. Readers that entered before WriteBegin are
// already drained, readers that enter afterwards observe the new
// generation.
func (il *IndexLock) WriteEnd() {
	lfc := lockfree.NewContext(0)
	lfc.FetchAdd(&il.generation, 1)
	lockorder.OnRelease(lockorder.LevelIndex)
	il.gate <- struct{}{}
}

func (il *IndexLock) cancelErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return lockerrors.Timeoutf("write on %s", il.typ)
	}
	return lockerrors.Cancelledf("write on %s", il.typ)
}

// ReadSeq returns an even generation snapshot for an optimistic read,
// spinning past any write in progress.
func (il *IndexLock) ReadSeq() uint64 {
	for {
		gen := il.generation.Load()
		if gen&1 == 0 {
			return gen
		}
		runtime.Gosched()
	}
}

// ReadValidate reports whether the generation is unchanged since the
// snapshot, i.e. no writer interfered with the optimistic read.
func (il *IndexLock) ReadValidate(seq uint64) bool {
	return il.generation.Load() == seq
}

func (il *IndexLock) Generation() uint64 { return il.generation.Load() }

func (il *IndexLock) ActiveReaders() int64 { return il.readers.Load() }

func (il *IndexLock) WritersWaiting() int32 { return il.writersWaiting.Load() }

// Stats is a point-in-time snapshot of the lock's operation counters.
type Stats struct {
	Generation uint64
	ReadOps    uint64
	WriteOps   uint64
	Readers    int64
	Waiting    int32
}

func (il *IndexLock) Stats() Stats {
	return Stats{
		Generation: il.generation.Load(),
		ReadOps:    il.readOps.Load(),
		WriteOps:   il.writeOps.Load(),
		Readers:    il.readers.Load(),
		Waiting:    il.writersWaiting.Load(),
	}
}
