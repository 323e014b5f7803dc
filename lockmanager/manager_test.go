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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
	"github.com/weaviate/vectorlock/indexlock"
	"github.com/weaviate/vectorlock/locktable"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	logger, _ := test.NewNullLogger()
	m, err := New(DefaultConfig(), logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Shutdown(context.Background())
	})
	return m
}

func TestNew_ValidatesConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.NUMADomains = 0
	_, err := New(cfg, logger, nil)
	require.ErrorIs(t, err, lockerrors.ErrInvalidArgument)

	_, err = New(DefaultConfig(), nil, nil)
	require.ErrorIs(t, err, lockerrors.ErrInvalidArgument)
}

func TestNew_WithMetrics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	prom := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())

	m, err := New(DefaultConfig(), logger, prom)
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	h, err := m.AcquireRecord(context.Background(), 1,
		locktable.ModeShared, 0)
	require.NoError(t, err)
	require.NoError(t, m.ReleaseRecord(h))
}

func TestEightConcurrentReaders(t *testing.T) {
	m := newTestManager(t)

	const (
		readers    = 8
		iterations = 1000
		id         = 12345
	)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				h, err := m.AcquireRecord(context.Background(), id,
					locktable.ModeShared, time.Second)
				if err != nil {
					failures.Add(1)
					continue
				}
				if err := m.ReleaseRecord(h); err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failures.Load(), "no contention errors expected")

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(readers*iterations), stats.TotalAcquisitions)
}

func TestMixedReadersAndWriters(t *testing.T) {
	m := newTestManager(t)

	const (
		tasks      = 12
		iterations = 150
		id         = 54321
	)

	var (
		wg            sync.WaitGroup
		activeReaders atomic.Int32
		activeWriters atomic.Int32
		violations    atomic.Int32
	)

	for i := 0; i < tasks; i++ {
		writer := i%4 == 0 // 25% writers
		wg.Add(1)
		go func(writer bool) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				mode := locktable.ModeShared
				if writer {
					mode = locktable.ModeExclusive
				}
				h, err := m.AcquireRecord(context.Background(), id, mode,
					10*time.Second)
				if err != nil {
					violations.Add(1)
					continue
				}

				if writer {
					if activeWriters.Add(1) != 1 || activeReaders.Load() > 0 {
						violations.Add(1)
					}
					activeWriters.Add(-1)
				} else {
					activeReaders.Add(1)
					if activeWriters.Load() > 0 {
						violations.Add(1)
					}
					activeReaders.Add(-1)
				}

				m.ReleaseRecord(h)
			}
		}(writer)
	}
	wg.Wait()

	assert.Zero(t, violations.Load(),
		"a writer and a reader were active simultaneously")
}

func TestAcquireRecord_Timeout(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.AcquireRecord(ctx, 7, locktable.ModeExclusive, 0)
	require.NoError(t, err)
	defer m.ReleaseRecord(h)

	start := time.Now()
	_, err = m.AcquireRecord(ctx, 7, locktable.ModeExclusive,
		10*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, lockerrors.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalContentions, uint64(1))
}

func TestAcquireRecord_InvalidModeIsNotContention(t *testing.T) {
	m := newTestManager(t)

	_, err := m.AcquireRecord(context.Background(), 1,
		locktable.LockMode(42), 0)
	require.ErrorIs(t, err, lockerrors.ErrInvalidArgument)

	stats, statsErr := m.Stats()
	require.NoError(t, statsErr)
	assert.Zero(t, stats.TotalContentions,
		"a malformed request must not count as contention")
}

func TestUpgradeAndDowngradeRecord(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.AcquireRecord(ctx, 3, locktable.ModeShared, 0)
	require.NoError(t, err)

	require.NoError(t, m.UpgradeRecord(ctx, h))
	assert.True(t, h.Exclusive())

	require.NoError(t, m.DowngradeRecord(h))
	assert.False(t, h.Exclusive())

	require.NoError(t, m.ReleaseRecord(h))
}

func TestCheckDependency_CycleRejected(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.CheckDependency(100, 200,
		lockorder.LevelRecord, lockorder.LevelRecord))

	err := m.CheckDependency(200, 100,
		lockorder.LevelRecord, lockorder.LevelRecord)
	require.ErrorIs(t, err, lockerrors.ErrWouldDeadlock)

	stats, statsErr := m.Stats()
	require.NoError(t, statsErr)
	assert.Equal(t, uint64(1), stats.DeadlocksPrevented)
}

func TestIndexLocks(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.IndexReadBegin(indexlock.TypeHNSWGraph))
	require.NoError(t, m.IndexReadEnd(indexlock.TypeHNSWGraph))

	require.NoError(t, m.IndexWriteBegin(ctx, indexlock.TypeHNSWGraph, 0))
	require.NoError(t, m.IndexWriteEnd(indexlock.TypeHNSWGraph))

	il, err := m.IndexLock(indexlock.TypeHNSWGraph)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), il.Generation())

	require.ErrorIs(t, m.IndexReadBegin(indexlock.Type(99)),
		lockerrors.ErrInvalidArgument)
	require.ErrorIs(t, m.IndexWriteEnd(indexlock.Type(-1)),
		lockerrors.ErrInvalidArgument)
}

func TestIndexWriteBegin_TimesOutBehindReader(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.IndexReadBegin(indexlock.TypeLSHTables))
	defer m.IndexReadEnd(indexlock.TypeLSHTables)

	err := m.IndexWriteBegin(ctx, indexlock.TypeLSHTables,
		20*time.Millisecond)
	require.ErrorIs(t, err, lockerrors.ErrTimeout)
}

func TestConfigure_TogglesDeadlockDetection(t *testing.T) {
	m := newTestManager(t)

	m.Configure(0, 0, false, false)

	// with detection off any dependency is accepted unchecked
	require.NoError(t, m.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord))
	require.NoError(t, m.CheckDependency(2, 1,
		lockorder.LevelRecord, lockorder.LevelRecord))

	m.Configure(1000, 100, true, true)

	require.NoError(t, m.CheckDependency(1, 2,
		lockorder.LevelRecord, lockorder.LevelRecord))
	require.ErrorIs(t, m.CheckDependency(2, 1,
		lockorder.LevelRecord, lockorder.LevelRecord),
		lockerrors.ErrWouldDeadlock)
}

func TestConfigure_NUMADisabled(t *testing.T) {
	m := newTestManager(t)
	m.Configure(1000, 100, false, true)

	h, err := m.AcquireRecord(context.Background(), 9,
		locktable.ModeShared, 0)
	require.NoError(t, err)
	require.NoError(t, m.ReleaseRecord(h))
}

func TestStats_Aggregation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.AcquireRecord(ctx, 1, locktable.ModeShared, 0)
	require.NoError(t, err)
	require.NoError(t, m.IndexReadBegin(indexlock.TypeHNSWGraph))

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalAcquisitions)
	assert.Equal(t, int64(1), stats.ActiveRecordLocks)
	assert.Equal(t, int64(1), stats.ActiveIndexReaders)

	require.NoError(t, m.IndexReadEnd(indexlock.TypeHNSWGraph))
	require.NoError(t, m.ReleaseRecord(h))
}

func TestShutdown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m, err := New(DefaultConfig(), logger, nil)
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	// idempotent
	require.NoError(t, m.Shutdown(context.Background()))

	_, err = m.AcquireRecord(context.Background(), 1,
		locktable.ModeShared, 0)
	require.ErrorIs(t, err, lockerrors.ErrInvalidArgument)

	_, err = m.Stats()
	require.Error(t, err)
}

func TestRecordLockDestroyed_DropsGraphNode(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.CheckDependency(10, 20,
		lockorder.LevelRecord, lockorder.LevelRecord))

	m.RecordLockDestroyed(20)

	// with the node gone the former back edge no longer closes a cycle
	require.NoError(t, m.CheckDependency(20, 10,
		lockorder.LevelRecord, lockorder.LevelRecord))
}
