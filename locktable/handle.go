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
	"sync/atomic"
	"time"
)

// Handle represents one successful acquisition. It keeps the reference that
// guarantees the underlying RecordLock stays alive until Release.
type Handle struct {
	lock      *RecordLock
	exclusive bool
	waited    time.Duration
	contended bool
	released  atomic.Bool
}

func (h *Handle) ID() uint64 { return h.lock.id }

func (h *Handle) Exclusive() bool { return h.exclusive }

// WaitDuration is the time spent between requesting the lock and holding
// it.
func (h *Handle) WaitDuration() time.Duration { return h.waited }

// Contended reports whether the acquisition had to wait at all.
func (h *Handle) Contended() bool { return h.contended }

// Lock exposes the underlying RecordLock for statistics inspection. The
// caller must not manipulate its state directly.
func (h *Handle) Lock() *RecordLock { return h.lock }
