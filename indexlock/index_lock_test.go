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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/vectorlock/entities/lockerrors"
)

func newTestLock(t *testing.T) *IndexLock {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return New(TypeHNSWGraph, logger, NewMetrics(nil))
}

func TestReadersDoNotBlockEachOther(t *testing.T) {
	il := newTestLock(t)

	il.ReadBegin()
	il.ReadBegin()
	assert.Equal(t, int64(2), il.ActiveReaders())

	il.ReadEnd()
	il.ReadEnd()
	assert.Equal(t, int64(0), il.ActiveReaders())
	assert.Equal(t, uint64(2), il.Stats().ReadOps)
}

func TestWriteWaitsForReaders(t *testing.T) {
	il := newTestLock(t)

	il.ReadBegin()

	entered := make(chan struct{})
	go func() {
		require.NoError(t, il.WriteBegin(context.Background()))
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("writer entered with an active reader")
	case <-time.After(50 * time.Millisecond):
	}

	il.ReadEnd()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("writer did not enter after readers drained")
	}
	il.WriteEnd()
}

func TestGenerationOddDuringWrite(t *testing.T) {
	il := newTestLock(t)

	require.Equal(t, uint64(0), il.Generation())

	require.NoError(t, il.WriteBegin(context.Background()))
	assert.Equal(t, uint64(1), il.Generation()&1, "generation must be odd inside a write")

	il.WriteEnd()
	assert.Equal(t, uint64(0), il.Generation()&1, "generation must be even outside a write")
	assert.Equal(t, uint64(2), il.Generation())
}

func TestReadSeqValidate(t *testing.T) {
	il := newTestLock(t)

	seq := il.ReadSeq()
	assert.True(t, il.ReadValidate(seq))

	require.NoError(t, il.WriteBegin(context.Background()))
	il.WriteEnd()

	assert.False(t, il.ReadValidate(seq),
		"a completed write must invalidate older snapshots")
}

func TestWriteBegin_Cancellable(t *testing.T) {
	il := newTestLock(t)

	il.ReadBegin()
	defer il.ReadEnd()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- il.WriteBegin(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, lockerrors.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled WriteBegin did not return")
	}

	assert.Equal(t, int32(0), il.WritersWaiting())
}

func TestWriteBegin_DeadlineMapsToTimeout(t *testing.T) {
	il := newTestLock(t)

	il.ReadBegin()
	defer il.ReadEnd()

	ctx, cancel := context.WithTimeout(context.Background(),
		20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, il.WriteBegin(ctx), lockerrors.ErrTimeout)
}

func TestWriteBegin_GateFreeAfterFailedAttempt(t *testing.T) {
	il := newTestLock(t)

	il.ReadBegin()

	ctx, cancel := context.WithTimeout(context.Background(),
		20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, il.WriteBegin(ctx), lockerrors.ErrTimeout)

	il.ReadEnd()
	require.NoError(t, il.WriteBegin(context.Background()))
	il.WriteEnd()
}

func TestWritersAndReadersNeverOverlap(t *testing.T) {
	il := newTestLock(t)

	const (
		writers    = 3
		readers    = 9
		iterations = 200
	)

	var (
		wg            sync.WaitGroup
		writersInside atomic.Int32
		violations    atomic.Int32
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if err := il.WriteBegin(context.Background()); err != nil {
					violations.Add(1)
					continue
				}
				if writersInside.Add(1) != 1 {
					violations.Add(1)
				}
				writersInside.Add(-1)
				il.WriteEnd()
			}
		}()
	}
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				il.ReadBegin()
				il.ReadEnd()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, uint64(writers*iterations), il.Stats().WriteOps)
	assert.Equal(t, uint64(readers*iterations), il.Stats().ReadOps)
}
