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

package locktable

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/vectorlock/entities/lockorder"
	"github.com/weaviate/vectorlock/lockfree"
)

// RecordLock is the reader/writer lock of a single record identifier. It is
// created lazily on first acquisition and owned by the Table; NUMA caches
// and handles only hold references. The shared/exclusive state lives behind
// the lock's own mutex, never behind the table's shard mutex, so holding a
// hot record never blocks unrelated lookups in the same shard.
type RecordLock struct {
	id     uint64
	domain int

	mu        sync.Mutex
	readers   int32
	exclusive bool
	// upgrading blocks new shared acquisitions so the pending upgrade can
	// drain the remaining readers. At most one upgrade may be pending, a
	// second one would wait on the first forever.
	upgrading bool

	// refs counts the table entry itself (handles, cache lookups and
	// in-flight acquisitions). The entry is only unlinked after refs
	// reached zero and the reclaim grace period passed.
	refs atomic.Uint64

	statsLock    sync.Mutex
	acquisitions uint64
	contentions  uint64
	totalWait    time.Duration
}

func newRecordLock(id uint64, domain int) *RecordLock {
	rl := &RecordLock{id: id, domain: domain}
	rl.refs.Store(1)
	return rl
}

func (rl *RecordLock) ID() uint64 { return rl.id }

// Domain is the locality domain the lock was first acquired from. NUMA
// caches only admit locks matching their own domain.
func (rl *RecordLock) Domain() int { return rl.domain }

// Level is the fixed ordering rank of the record lock class.
func (rl *RecordLock) Level() lockorder.Level { return lockorder.LevelRecord }

func (rl *RecordLock) tryAcquire(exclusive bool) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if exclusive {
		if rl.exclusive || rl.readers > 0 || rl.upgrading {
			return false
		}
		rl.exclusive = true
		return true
	}
	if rl.exclusive || rl.upgrading {
		return false
	}
	rl.readers++
	return true
}

func (rl *RecordLock) releaseShared() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.readers > 0 {
		rl.readers--
	}
}

func (rl *RecordLock) releaseExclusive() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.exclusive = false
}

// beginUpgrade reserves the pending-upgrade slot. It fails if another
// upgrade is already pending, two waiting upgraders would deadlock on each
// other's read hold.
func (rl *RecordLock) beginUpgrade() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.upgrading {
		return false
	}
	rl.upgrading = true
	return true
}

// tryFinishUpgrade converts the caller's shared hold into the exclusive
// hold once it is the only remaining reader.
func (rl *RecordLock) tryFinishUpgrade() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.readers != 1 || rl.exclusive {
		return false
	}
	rl.readers = 0
	rl.exclusive = true
	rl.upgrading = false
	return true
}

func (rl *RecordLock) abortUpgrade() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.upgrading = false
}

// downgrade converts the exclusive hold back into a shared one. Never
// blocks.
func (rl *RecordLock) downgrade() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.exclusive = false
	rl.readers++
}

// retain increments the reference count. Only safe while the caller can
// prove the entry is alive, i.e. under the owning shard's mutex.
func (rl *RecordLock) retain() {
	rl.refs.Add(1)
}

// TryRetain increments the reference count unless it already dropped to
// zero. Zero means the entry is awaiting reclamation and must be treated as
// dead; unlike retain this is safe without the shard mutex, which is what
// the NUMA caches rely on.
func (rl *RecordLock) TryRetain(lfc *lockfree.Context) bool {
	for {
		cur := rl.refs.Load()
		if cur == 0 {
			return false
		}
		if lfc.CompareAndSwap(&rl.refs, cur, cur+1) {
			return true
		}
		if !lfc.ShouldRetry() {
			return false
		}
	}
}

// releaseRef decrements the reference count and reports whether it reached
// zero. Underflow is clamped, a zero count never decrements further.
func (rl *RecordLock) releaseRef(lfc *lockfree.Context) (zero, underflow bool) {
	for {
		cur := rl.refs.Load()
		if cur == 0 {
			return false, true
		}
		if lfc.CompareAndSwap(&rl.refs, cur, cur-1) {
			return cur == 1, false
		}
		if !lfc.ShouldRetry() {
			// the budget only runs out under extreme contention, fall
			// back to a fresh one rather than leak the reference
			lfc.Reset()
		}
	}
}

func (rl *RecordLock) recordAcquisition(wait time.Duration, contended bool) {
	rl.statsLock.Lock()
	defer rl.statsLock.Unlock()

	rl.acquisitions++
	rl.totalWait += wait
	if contended {
		rl.contentions++
	}
}

func (rl *RecordLock) contentionCount() uint64 {
	rl.statsLock.Lock()
	defer rl.statsLock.Unlock()

	return rl.contentions
}

// RecordLockStats is a point-in-time snapshot of a single lock's counters.
type RecordLockStats struct {
	Acquisitions uint64
	Contentions  uint64
	TotalWait    time.Duration
	RefCount     uint64
}

func (rl *RecordLock) Stats() RecordLockStats {
	rl.statsLock.Lock()
	defer rl.statsLock.Unlock()

	return RecordLockStats{
		Acquisitions: rl.acquisitions,
		Contentions:  rl.contentions,
		TotalWait:    rl.totalWait,
		RefCount:     rl.refs.Load(),
	}
}
