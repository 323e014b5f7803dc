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

// Package locktable implements the global record lock table: a sharded map
// from record identifiers to reference-counted reader/writer locks with
// lazy creation and deferred, grace-period based reclamation.
package locktable

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/entities/lockorder"
	"github.com/weaviate/vectorlock/lockfree"
)

const (
	// numShards must be a power of two, shard selection masks the murmur
	// sum of the identifier
	numShards = 512

	// blocking acquisitions poll the lock state with a doubling interval,
	// short enough to keep uncontended handoffs cheap and long enough not
	// to burn a core while waiting
	initPollInterval = 10 * time.Microsecond
	maxPollInterval  = 100 * time.Millisecond

	// locks past the adaptive contention threshold start polling at a
	// coarser interval right away, spinning tightly on a known-hot lock
	// only wastes cycles
	adaptivePollInterval = time.Millisecond

	// DefaultReclaimGrace is how long a zero-reference entry stays in the
	// table before the reclaim cycle may unlink it. The grace period gives
	// concurrent lookups that raced the final release a window to revive
	// the entry instead of allocating a fresh one.
	DefaultReclaimGrace = time.Second
)

type shard struct {
	sync.Mutex
	entries map[uint64]*RecordLock
}

type reclaimCandidate struct {
	id     uint64
	zeroAt time.Time
}

// Table owns the lifetime of all RecordLocks. Shard mutexes protect table
// structure only (lookup, insert, unlink), never the held state of an
// individual lock.
type Table struct {
	logger  logrus.FieldLogger
	metrics *Metrics

	shards [numShards]shard
	active atomic.Int64

	reclaimGrace time.Duration
	pendingLock  sync.Mutex
	pending      []reclaimCandidate

	adaptiveThreshold atomic.Uint32
}

type TableOption func(*Table)

// WithReclaimGrace overrides the grace period before zero-reference
// entries are unlinked. Mainly used by tests.
func WithReclaimGrace(grace time.Duration) TableOption {
	return func(t *Table) {
		t.reclaimGrace = grace
	}
}

func NewTable(logger logrus.FieldLogger, metrics *Metrics,
	opts ...TableOption,
) *Table {
	t := &Table{
		logger:       logger.WithField("component", "locktable"),
		metrics:      metrics,
		reclaimGrace: DefaultReclaimGrace,
	}
	for i := range t.shards {
		t.shards[i].entries = map[uint64]*RecordLock{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func shardFor(id uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	// record identifiers are often sequential, murmur decorrelates them
	// across shards
	return murmur3.Sum64(buf[:]) & (numShards - 1)
}

// Retain looks the identifier up, creating the entry if absent, and
// returns it with the reference count already incremented. The increment
// happens under the shard mutex so the entry cannot be reclaimed between
// lookup and use.
func (t *Table) Retain(id uint64, domain int) *RecordLock {
	s := &t.shards[shardFor(id)]

	s.Lock()
	defer s.Unlock()

	if rl, ok := s.entries[id]; ok {
		rl.retain()
		return rl
	}

	rl := newRecordLock(id, domain)
	s.entries[id] = rl
	t.active.Add(1)
	t.metrics.LockAdded()
	return rl
}

// ReleaseRef gives up one reference obtained through Retain or TryRetain
// without having held the lock, e.g. after a failed acquisition. A zero
// count schedules the entry for deferred reclamation.
func (t *Table) ReleaseRef(rl *RecordLock) {
	t.releaseRef(rl, lockfree.NewContext(rl.domain))
}

func (t *Table) releaseRef(rl *RecordLock, lfc *lockfree.Context) {
	zero, underflow := rl.releaseRef(lfc)
	if underflow {
		t.logger.WithField("record_id", rl.id).
			Error("reference count underflow, release without retain")
		return
	}
	if zero {
		t.scheduleReclaim(rl.id)
	}
}

// Acquire obtains a lock on the identifier in the requested mode. A zero
// timeout means no limit for the blocking modes. The context cancels the
// wait early.
func (t *Table) Acquire(ctx context.Context, id uint64, mode LockMode,
	timeout time.Duration, domain int,
) (*Handle, error) {
	if !mode.valid() {
		return nil, lockerrors.InvalidArgumentf("lock mode %d", mode)
	}

	rl := t.Retain(id, domain)
	return t.AcquireRetained(ctx, rl, mode, timeout)
}

// AcquireRetained performs the actual acquisition on an already retained
// lock, e.g. one served from a NUMA cache. The reference is consumed on
// failure and carried by the returned handle on success.
func (t *Table) AcquireRetained(ctx context.Context, rl *RecordLock,
	mode LockMode, timeout time.Duration,
) (*Handle, error) {
	if !mode.valid() {
		t.ReleaseRef(rl)
		return nil, lockerrors.InvalidArgumentf("lock mode %d", mode)
	}

	start := time.Now()
	exclusive := mode.exclusive()

	if rl.tryAcquire(exclusive) {
		return t.acquired(rl, exclusive, 0), nil
	}

	if !mode.blocking() {
		t.metrics.Contention()
		t.ReleaseRef(rl)
		return nil, lockerrors.Busyf("record %d held in conflicting mode", rl.id)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
	}

	interval := initPollInterval
	if at := t.adaptiveThreshold.Load(); at > 0 && rl.contentionCount() >= uint64(at) {
		interval = adaptivePollInterval
	}
	for {
		select {
		case <-ctx.Done():
			t.metrics.Contention()
			t.ReleaseRef(rl)
			return nil, lockerrors.Cancelledf("record %d", rl.id)
		default:
		}

		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				t.metrics.Contention()
				t.ReleaseRef(rl)
				return nil, lockerrors.Timeoutf("record %d after %s",
					rl.id, timeout)
			}
			if interval > remaining {
				interval = remaining
			}
		}

		time.Sleep(interval)
		if interval < maxPollInterval {
			interval *= 2
			if interval > maxPollInterval {
				interval = maxPollInterval
			}
		}

		if rl.tryAcquire(exclusive) {
			return t.acquired(rl, exclusive, time.Since(start)), nil
		}
	}
}

func (t *Table) acquired(rl *RecordLock, exclusive bool,
	wait time.Duration,
) *Handle {
	lockorder.OnAcquire(lockorder.LevelRecord)

	contended := wait > 0
	rl.recordAcquisition(wait, contended)
	t.metrics.Acquisition(exclusive, wait)
	if contended {
		t.metrics.Contention()
	}

	return &Handle{
		lock:      rl,
		exclusive: exclusive,
		waited:    wait,
		contended: contended,
	}
}

// Release gives up the hold represented by the handle and its reference.
// Releasing a handle twice fails with ErrInvalidArgument.
func (t *Table) Release(h *Handle) error {
	if h == nil || h.lock == nil {
		return lockerrors.InvalidArgumentf("nil handle")
	}
	if !h.released.CompareAndSwap(false, true) {
		return lockerrors.InvalidArgumentf("handle for record %d already released",
			h.lock.id)
	}

	if h.exclusive {
		h.lock.releaseExclusive()
	} else {
		h.lock.releaseShared()
	}
	lockorder.OnRelease(lockorder.LevelRecord)

	t.ReleaseRef(h.lock)
	return nil
}

// Upgrade converts a shared hold into an exclusive one, waiting for the
// remaining readers to drain. Only one upgrade may be pending per record; a
// concurrent second upgrader is rejected with ErrWouldDeadlock since both
// would wait on each other's read hold forever.
func (t *Table) Upgrade(ctx context.Context, h *Handle) error {
	if h == nil || h.lock == nil || h.released.Load() {
		return lockerrors.InvalidArgumentf("invalid handle")
	}
	if h.exclusive {
		return lockerrors.InvalidArgumentf("record %d already exclusive",
			h.lock.id)
	}

	rl := h.lock
	if !rl.beginUpgrade() {
		return lockerrors.WouldDeadlockf("concurrent upgrade on record %d",
			rl.id)
	}

	interval := initPollInterval
	for !rl.tryFinishUpgrade() {
		select {
		case <-ctx.Done():
			rl.abortUpgrade()
			return lockerrors.Cancelledf("upgrade of record %d", rl.id)
		default:
		}

		time.Sleep(interval)
		if interval < maxPollInterval {
			interval *= 2
			if interval > maxPollInterval {
				interval = maxPollInterval
			}
		}
	}

	h.exclusive = true
	return nil
}

// Downgrade converts an exclusive hold into a shared one. Never blocks and
// never fails structurally.
func (t *Table) Downgrade(h *Handle) error {
	if h == nil || h.lock == nil || h.released.Load() {
		return lockerrors.InvalidArgumentf("invalid handle")
	}
	if !h.exclusive {
		return lockerrors.InvalidArgumentf("record %d not exclusive", h.lock.id)
	}

	h.lock.downgrade()
	h.exclusive = false
	return nil
}

func (t *Table) scheduleReclaim(id uint64) {
	t.pendingLock.Lock()
	defer t.pendingLock.Unlock()

	t.pending = append(t.pending, reclaimCandidate{id: id, zeroAt: time.Now()})
}

// ReclaimCycle unlinks entries whose reference count was zero for at least
// the grace period and is still zero now. Registered as a background cycle
// callback; the return value reports whether any work was done. An entry
// revived by a concurrent Retain simply drops off the candidate list.
func (t *Table) ReclaimCycle() bool {
	t.pendingLock.Lock()
	candidates := t.pending
	t.pending = nil
	t.pendingLock.Unlock()

	if len(candidates) == 0 {
		return false
	}

	var keep []reclaimCandidate
	reclaimed := 0

	for _, cand := range candidates {
		if time.Since(cand.zeroAt) < t.reclaimGrace {
			keep = append(keep, cand)
			continue
		}

		s := &t.shards[shardFor(cand.id)]
		s.Lock()
		rl, ok := s.entries[cand.id]
		// revived entries (non-zero refs) stay, re-queued by the next
		// release that drops them back to zero
		if ok && rl.refs.Load() == 0 {
			delete(s.entries, cand.id)
			t.active.Add(-1)
			t.metrics.LockRemoved()
			reclaimed++
		}
		s.Unlock()
	}

	if len(keep) > 0 {
		t.pendingLock.Lock()
		t.pending = append(t.pending, keep...)
		t.pendingLock.Unlock()
	}

	if reclaimed > 0 {
		t.logger.WithField("reclaimed", reclaimed).Debug("unlinked record locks")
	}
	return reclaimed > 0
}

// SetAdaptiveThreshold updates the per-lock contention count past which
// blocking acquisitions switch to coarse polling. Zero disables adaptive
// polling. Takes effect for newly issued acquisitions only.
func (t *Table) SetAdaptiveThreshold(threshold uint32) {
	t.adaptiveThreshold.Store(threshold)
}

// Active returns the number of entries currently present in the table,
// including zero-reference entries awaiting reclamation.
func (t *Table) Active() int64 {
	return t.active.Load()
}
