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

// Package lockmanager is the façade over the whole concurrency-control
// core: the record lock table, the fixed set of index locks, the NUMA lock
// caches and the deadlock detector. Construct explicitly and share the
// instance; there is no global singleton, which keeps independent managers
// testable side by side.
package lockmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/vectorlock/deadlock"
	"github.com/weaviate/vectorlock/entities/cyclemanager"
	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
	"github.com/weaviate/vectorlock/indexlock"
	"github.com/weaviate/vectorlock/locktable"
	"github.com/weaviate/vectorlock/numacache"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

const (
	reclaimMinInterval = 250 * time.Millisecond
	reclaimMaxInterval = 4 * time.Second
)

type Manager struct {
	logger logrus.FieldLogger

	configLock sync.RWMutex
	cfg        Config

	table    *locktable.Table
	indexes  [indexlock.NumTypes]*indexlock.IndexLock
	caches   *numacache.Caches
	detector *deadlock.Detector

	sweeper   *cyclemanager.CycleManager
	reclaimer *cyclemanager.CycleManager

	totalAcquisitions atomic.Uint64
	totalContentions  atomic.Uint64

	shut atomic.Bool
}

// New builds the manager and all owned components in dependency order
// (table, index locks, NUMA caches, detector) and starts the background
// cycles. A nil prom disables metrics throughout.
func New(cfg Config, logger logrus.FieldLogger,
	prom *monitoring.PrometheusMetrics,
) (*Manager, error) {
	if logger == nil {
		return nil, lockerrors.InvalidArgumentf("nil logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		logger: logger.WithField("component", "lockmanager"),
		cfg:    cfg,
	}

	m.table = locktable.NewTable(logger, locktable.NewMetrics(prom),
		locktable.WithReclaimGrace(cfg.ReclaimGrace))
	m.table.SetAdaptiveThreshold(cfg.AdaptiveThreshold)

	indexMetrics := indexlock.NewMetrics(prom)
	for typ := indexlock.Type(0); typ < indexlock.NumTypes; typ++ {
		m.indexes[typ] = indexlock.New(typ, logger, indexMetrics)
	}

	m.caches = numacache.NewCaches(cfg.NUMADomains, cfg.NUMACacheCapacity,
		numacache.NewMetrics(prom))

	m.detector = deadlock.New(logger, deadlock.NewMetrics(prom))
	m.detector.SetEnabled(cfg.DeadlockDetection)

	m.sweeper = cyclemanager.New("deadlock-sweep",
		cyclemanager.NewFixedTicker(cfg.SweepInterval),
		m.detector.SweepCycle, logger)
	m.reclaimer = cyclemanager.New("lock-reclaim",
		cyclemanager.NewBackoffTicker(reclaimMinInterval, reclaimMaxInterval),
		m.table.ReclaimCycle, logger)

	m.sweeper.Start()
	m.reclaimer.Start()

	m.logger.WithFields(logrus.Fields{
		"numa_aware":         cfg.NUMAAware,
		"numa_domains":       cfg.NUMADomains,
		"deadlock_detection": cfg.DeadlockDetection,
	}).Info("lock manager initialized")

	return m, nil
}

// AcquireRecord obtains a lock on the record identifier. NUMA-aware mode
// probes the caller's local domain cache before the global table. A zero
// timeout means no limit for the blocking modes.
func (m *Manager) AcquireRecord(ctx context.Context, id uint64,
	mode locktable.LockMode, timeout time.Duration,
) (*locktable.Handle, error) {
	if m.shut.Load() {
		return nil, lockerrors.InvalidArgumentf("manager is shut down")
	}

	m.configLock.RLock()
	numaAware := m.cfg.NUMAAware
	contentionThreshold := m.cfg.ContentionThreshold
	m.configLock.RUnlock()

	domain := m.caches.CurrentDomain()

	var rl *locktable.RecordLock
	if numaAware {
		cache := m.caches.ForDomain(domain)
		if cached, ok := cache.Get(id); ok {
			rl = cached
		} else {
			rl = m.table.Retain(id, domain)
			cache.Put(rl)
		}
	} else {
		rl = m.table.Retain(id, domain)
	}

	h, err := m.table.AcquireRetained(ctx, rl, mode, timeout)
	if err != nil {
		// only failures caused by other holders count as contention,
		// malformed requests do not
		if lockerrors.IsRetryable(err) || errors.Is(err, lockerrors.ErrCancelled) {
			m.totalContentions.Add(1)
		}
		return nil, err
	}

	m.totalAcquisitions.Add(1)
	if h.Contended() {
		m.totalContentions.Add(1)
	}

	if contentionThreshold > 0 {
		if stats := rl.Stats(); stats.Contentions == uint64(contentionThreshold) {
			m.logger.WithFields(logrus.Fields{
				"record_id":   id,
				"contentions": stats.Contentions,
			}).Debug("record lock crossed contention threshold")
		}
	}

	return h, nil
}

func (m *Manager) ReleaseRecord(h *locktable.Handle) error {
	return m.table.Release(h)
}

// UpgradeRecord converts a shared hold into an exclusive one.
func (m *Manager) UpgradeRecord(ctx context.Context, h *locktable.Handle) error {
	return m.table.Upgrade(ctx, h)
}

// DowngradeRecord converts an exclusive hold into a shared one, never
// blocks.
func (m *Manager) DowngradeRecord(h *locktable.Handle) error {
	return m.table.Downgrade(h)
}

// IndexReadBegin enters a versioned-read section on the given index
// structure.
func (m *Manager) IndexReadBegin(typ indexlock.Type) error {
	if !typ.Valid() {
		return lockerrors.InvalidArgumentf("index type %d", typ)
	}
	m.indexes[typ].ReadBegin()
	return nil
}

func (m *Manager) IndexReadEnd(typ indexlock.Type) error {
	if !typ.Valid() {
		return lockerrors.InvalidArgumentf("index type %d", typ)
	}
	m.indexes[typ].ReadEnd()
	return nil
}

// IndexWriteBegin acquires exclusive write access on the given index
// structure, bounded by the timeout if non-zero.
func (m *Manager) IndexWriteBegin(ctx context.Context, typ indexlock.Type,
	timeout time.Duration,
) error {
	if !typ.Valid() {
		return lockerrors.InvalidArgumentf("index type %d", typ)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.indexes[typ].WriteBegin(ctx)
}

func (m *Manager) IndexWriteEnd(typ indexlock.Type) error {
	if !typ.Valid() {
		return lockerrors.InvalidArgumentf("index type %d", typ)
	}
	m.indexes[typ].WriteEnd()
	return nil
}

// IndexLock exposes the lock instance of an index structure, e.g. for
// optimistic ReadSeq/ReadValidate use.
func (m *Manager) IndexLock(typ indexlock.Type) (*indexlock.IndexLock, error) {
	if !typ.Valid() {
		return nil, lockerrors.InvalidArgumentf("index type %d", typ)
	}
	return m.indexes[typ], nil
}

// CheckDependency records that lockB is about to be acquired while lockA
// is held, rejecting the dependency if it would close a cycle. A no-op
// success while deadlock detection is disabled.
func (m *Manager) CheckDependency(lockA, lockB uint64,
	orderA, orderB lockorder.Level,
) error {
	m.configLock.RLock()
	enabled := m.cfg.DeadlockDetection
	m.configLock.RUnlock()

	if !enabled {
		return nil
	}
	return m.detector.CheckDependency(lockA, lockB, orderA, orderB,
		lockorder.Owner())
}

// RecordLockDestroyed drops the dependency-graph node of a lock that no
// longer exists.
func (m *Manager) RecordLockDestroyed(id uint64) {
	m.detector.RemoveLock(id)
}

// Configure updates the runtime thresholds and flags. Takes effect for
// newly issued acquisitions only.
func (m *Manager) Configure(contentionThreshold, adaptiveThreshold uint32,
	numaAware, deadlockDetection bool,
) {
	m.configLock.Lock()
	defer m.configLock.Unlock()

	m.cfg.ContentionThreshold = contentionThreshold
	m.cfg.AdaptiveThreshold = adaptiveThreshold
	m.cfg.NUMAAware = numaAware
	m.cfg.DeadlockDetection = deadlockDetection

	m.table.SetAdaptiveThreshold(adaptiveThreshold)
	m.detector.SetEnabled(deadlockDetection)

	m.logger.WithFields(logrus.Fields{
		"contention_threshold": contentionThreshold,
		"adaptive_threshold":   adaptiveThreshold,
		"numa_aware":           numaAware,
		"deadlock_detection":   deadlockDetection,
	}).Info("lock manager reconfigured")
}

// Shutdown stops the background cycles in reverse construction order. The
// manager rejects new acquisitions afterwards; holders may still release.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.shut.CompareAndSwap(false, true) {
		return nil
	}

	var combined error
	if err := m.sweeper.StopAndWait(ctx); err != nil {
		combined = multierror.Append(combined, err)
	}
	if err := m.reclaimer.StopAndWait(ctx); err != nil {
		combined = multierror.Append(combined, err)
	}

	m.logger.Info("lock manager shut down")
	return combined
}
