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
	"time"

	"github.com/weaviate/vectorlock/deadlock"
	"github.com/weaviate/vectorlock/entities/lockerrors"
	"github.com/weaviate/vectorlock/locktable"
)

// Config controls the manager's runtime behavior. All fields can be
// changed later through Configure; changes only affect newly issued
// acquisitions.
type Config struct {
	// ContentionThreshold is the per-lock contention count past which a
	// record lock is reported as hot. Zero disables the report.
	ContentionThreshold uint32

	// AdaptiveThreshold is the per-lock contention count past which
	// blocking acquisitions poll coarsely instead of spinning tightly.
	// Zero disables adaptive polling.
	AdaptiveThreshold uint32

	// NUMAAware routes record lock lookups through the per-domain caches
	// before the global table.
	NUMAAware bool

	// DeadlockDetection enables both the insertion-time dependency check
	// and the background cycle sweep.
	DeadlockDetection bool

	// NUMADomains is the number of locality domains to maintain caches
	// for. Fixed at construction time.
	NUMADomains int

	// NUMACacheCapacity bounds the entries kept per domain cache.
	NUMACacheCapacity int

	// SweepInterval is the period of the background deadlock sweep.
	SweepInterval time.Duration

	// ReclaimGrace is how long a zero-reference record lock stays in the
	// table before it may be unlinked.
	ReclaimGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		ContentionThreshold: 1000,
		AdaptiveThreshold:   100,
		NUMAAware:           true,
		DeadlockDetection:   true,
		NUMADomains:         2,
		NUMACacheCapacity:   1024,
		SweepInterval:       deadlock.DefaultSweepInterval,
		ReclaimGrace:        locktable.DefaultReclaimGrace,
	}
}

func (c *Config) Validate() error {
	if c.NUMADomains <= 0 {
		return lockerrors.InvalidArgumentf("numa domains %d", c.NUMADomains)
	}
	if c.SweepInterval <= 0 {
		return lockerrors.InvalidArgumentf("sweep interval %s", c.SweepInterval)
	}
	if c.ReclaimGrace < 0 {
		return lockerrors.InvalidArgumentf("reclaim grace %s", c.ReclaimGrace)
	}
	return nil
}
