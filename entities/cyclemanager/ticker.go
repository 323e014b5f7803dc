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

package cyclemanager

import (
	"time"
)

// CycleTicker abstracts the pacing of a background cycle. CycleExecuted is
// fed back after every cycle so a ticker can slow down when there is no
// work.
type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	// CycleExecuted is called after each cycle with the indication whether
	// actual work was done
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewFixedTicker fires at a constant interval regardless of whether cycles
// do any work. Used for the deadlock sweep, which has to stay responsive.
func NewFixedTicker(interval time.Duration) CycleTicker {
	return &fixedTicker{
		interval: interval,
		ticker:   newStoppedTicker(),
	}
}

func (t *fixedTicker) Start() {
	t.ticker.Reset(t.interval)
}

func (t *fixedTicker) Stop() {
	t.ticker.Stop()
}

func (t *fixedTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *fixedTicker) CycleExecuted(bool) {}

type backoffTicker struct {
	minInterval time.Duration
	maxInterval time.Duration
	current     time.Duration
	ticker      *time.Ticker
}

// NewBackoffTicker starts at minInterval and doubles up to maxInterval for
// as long as cycles report no work done, resetting to minInterval as soon
// as a cycle was productive. Used for the lock reclaimer, which is idle
// most of the time.
func NewBackoffTicker(minInterval, maxInterval time.Duration) CycleTicker {
	return &backoffTicker{
		minInterval: minInterval,
		maxInterval: maxInterval,
		current:     minInterval,
		ticker:      newStoppedTicker(),
	}
}

func (t *backoffTicker) Start() {
	t.current = t.minInterval
	t.ticker.Reset(t.current)
}

func (t *backoffTicker) Stop() {
	t.ticker.Stop()
}

func (t *backoffTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *backoffTicker) CycleExecuted(executed bool) {
	if executed {
		if t.current != t.minInterval {
			t.current = t.minInterval
			t.ticker.Reset(t.current)
		}
		return
	}
	if t.current < t.maxInterval {
		t.current *= 2
		if t.current > t.maxInterval {
			t.current = t.maxInterval
		}
		t.ticker.Reset(t.current)
	}
}

func newStoppedTicker() *time.Ticker {
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}
