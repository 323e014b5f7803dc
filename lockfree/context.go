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

// Package lockfree provides the atomic building blocks used by the record
// lock table's reference counting and the index locks' generation updates:
// compare-and-swap, fetch-and-add and exchange on caller-supplied cells,
// paired with a per-operation Context that bounds retries and applies
// jittered exponential backoff.
package lockfree

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries is the number of times ShouldRetry permits another
	// attempt before giving up.
	DefaultMaxRetries = 1000

	defaultInitialDelay = time.Microsecond
	defaultMaxDelay     = 100 * time.Microsecond

	// delays below spinThreshold are busy-waited, delays below
	// yieldThreshold only yield the processor, anything above sleeps
	spinThreshold  = 2 * time.Microsecond
	yieldThreshold = 50 * time.Microsecond
)

// Context carries the bookkeeping of one lock-free operation sequence. It
// is owned by a single goroutine and must not be shared.
type Context struct {
	domain  int
	started time.Time

	attempts  uint64
	successes uint64
	failures  uint64
	retries   uint64

	maxRetries uint64
	boff       *backoff.ExponentialBackOff
}

type Option func(*Context)

func WithMaxRetries(n uint64) Option {
	return func(c *Context) {
		c.maxRetries = n
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Context) {
		c.boff.MaxInterval = d
	}
}

// NewContext returns a Context originating from the given locality domain.
func NewContext(domain int, opts ...Option) *Context {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = defaultInitialDelay
	boff.RandomizationFactor = 0.25
	boff.Multiplier = 2
	boff.MaxInterval = defaultMaxDelay
	// retries are bounded by count, never by elapsed time
	boff.MaxElapsedTime = 0
	boff.Reset()

	c := &Context{
		domain:     domain,
		started:    time.Now(),
		maxRetries: DefaultMaxRetries,
		boff:       boff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompareAndSwap attempts to swap old for new on the cell, recording the
// attempt in the context.
func (c *Context) CompareAndSwap(cell *atomic.Uint64, old, new uint64) bool {
	c.attempts++
	if cell.CompareAndSwap(old, new) {
		c.successes++
		return true
	}
	c.failures++
	return false
}

// FetchAdd adds delta to the cell and returns the new value. Never fails.
func (c *Context) FetchAdd(cell *atomic.Uint64, delta uint64) uint64 {
	c.attempts++
	c.successes++
	return cell.Add(delta)
}

// Exchange stores new and returns the previous value. Never fails.
func (c *Context) Exchange(cell *atomic.Uint64, new uint64) uint64 {
	c.attempts++
	c.successes++
	return cell.Swap(new)
}

// ShouldRetry reports whether the caller may attempt the operation again.
// It returns false once the retry budget is exhausted, otherwise it blocks
// for the next backoff delay. Short delays busy-wait or yield instead of
// sleeping, the scheduler granularity would otherwise dominate them.
func (c *Context) ShouldRetry() bool {
	c.retries++
	if c.retries > c.maxRetries {
		return false
	}

	delay := c.boff.NextBackOff()
	switch {
	case delay < spinThreshold:
		for start := time.Now(); time.Since(start) < delay; {
		}
	case delay < yieldThreshold:
		runtime.Gosched()
	default:
		time.Sleep(delay)
	}
	return true
}

// Reset clears the retry budget and backoff state so the context can be
// reused for a fresh operation sequence. Attempt counters are cumulative
// and survive the reset.
func (c *Context) Reset() {
	c.retries = 0
	c.boff.Reset()
}

func (c *Context) Domain() int        { return c.domain }
func (c *Context) Started() time.Time { return c.started }
func (c *Context) Attempts() uint64   { return c.attempts }
func (c *Context) Successes() uint64  { return c.successes }
func (c *Context) Failures() uint64   { return c.failures }
func (c *Context) Retries() uint64    { return c.retries }
func (c *Context) MaxRetries() uint64 { return c.maxRetries }

func (c *Context) Elapsed() time.Duration {
	return time.Since(c.started)
}
