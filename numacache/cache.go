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

// Package numacache keeps a small per-locality-domain cache of recently
// used record locks, consulted before the global table. Purely a locality
// optimization: the caches reference locks, the table always owns their
// lifetime, and correctness never depends on the hit rate.
package numacache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/weaviate/vectorlock/lockfree"
	"github.com/weaviate/vectorlock/locktable"
	"github.com/weaviate/vectorlock/usecases/monitoring"
)

// DefaultCapacity bounds the entries kept per domain. The cache is meant
// to hold the hot working set, not mirror the table.
const DefaultCapacity = 1024

// Cache is the lock cache of a single locality domain.
type Cache struct {
	domain   int
	capacity int

	mu      sync.Mutex
	entries map[uint64]*locktable.RecordLock

	hits   atomic.Uint64
	misses atomic.Uint64

	metrics *Metrics
}

func NewCache(domain, capacity int, metrics *Metrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		domain:   domain,
		capacity: capacity,
		entries:  map[uint64]*locktable.RecordLock{},
		metrics:  metrics,
	}
}

func (c *Cache) Domain() int { return c.domain }

// Get returns the cached lock for the identifier with its reference count
// already incremented, or a miss. A cached entry whose reference count
// already dropped to zero is dead (awaiting reclamation by the table) and
// is evicted instead of returned.
func (c *Cache) Get(id uint64) (*locktable.RecordLock, bool) {
	c.mu.Lock()
	rl, ok := c.entries[id]
	c.mu.Unlock()

	if !ok {
		c.miss()
		return nil, false
	}

	// the CAS loop may back off under refcount contention, it must run
	// outside the map mutex so one hot entry cannot stall the whole domain
	lfc := lockfree.NewContext(c.domain)
	if !rl.TryRetain(lfc) {
		c.mu.Lock()
		if cur, still := c.entries[id]; still && cur == rl {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		c.miss()
		return nil, false
	}

	c.hits.Add(1)
	c.metrics.Hit(c.domain)
	return rl, true
}

// Put inserts a lock reference unless the lock's affinity does not match
// this domain or it is already present. The cache never takes a reference
// of its own; stale entries are detected on Get.
func (c *Cache) Put(rl *locktable.RecordLock) {
	if rl == nil || rl.Domain() != c.domain {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[rl.ID()]; ok {
		return
	}
	if len(c.entries) >= c.capacity {
		// evict an arbitrary entry, the cache holds references only and
		// eviction can never invalidate a held lock
		for id := range c.entries {
			delete(c.entries, id)
			break
		}
	}
	c.entries[rl.ID()] = rl
}

// Invalidate drops the entry for the identifier if present.
func (c *Cache) Invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

func (c *Cache) miss() {
	c.misses.Add(1)
	c.metrics.Miss(c.domain)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *Cache) Hits() uint64   { return c.hits.Load() }
func (c *Cache) Misses() uint64 { return c.misses.Load() }

// Caches bundles one Cache per locality domain.
type Caches struct {
	caches []*Cache
}

func NewCaches(domains, capacity int, metrics *Metrics) *Caches {
	if domains <= 0 {
		domains = 1
	}
	cs := &Caches{caches: make([]*Cache, domains)}
	for i := range cs.caches {
		cs.caches[i] = NewCache(i, capacity, metrics)
	}
	return cs
}

// ForDomain returns the cache of the given domain, clamping unknown
// domains onto the configured range.
func (cs *Caches) ForDomain(domain int) *Cache {
	if domain < 0 || domain >= len(cs.caches) {
		domain = domain % len(cs.caches)
		if domain < 0 {
			domain = 0
		}
	}
	return cs.caches[domain]
}

// CurrentDomain resolves the locality domain of the calling goroutine.
func (cs *Caches) CurrentDomain() int {
	return currentDomain() % len(cs.caches)
}

func (cs *Caches) Domains() int { return len(cs.caches) }

// HitRate returns the aggregate hit rate across all domains, 0 if no
// lookups happened yet.
func (cs *Caches) HitRate() float64 {
	var hits, total uint64
	for _, c := range cs.caches {
		h, m := c.Hits(), c.Misses()
		hits += h
		total += h + m
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Metrics wraps the per-domain prometheus counters, nil-safe like all
// component metrics.
type Metrics struct {
	enabled bool
	hits    *monitoring.PrometheusMetrics
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	if prom == nil {
		return &Metrics{enabled: false}
	}
	return &Metrics{enabled: true, hits: prom}
}

func (m *Metrics) Hit(domain int) {
	if !m.enabled {
		return
	}

	m.hits.NumaCacheHitsTotal.WithLabelValues(strconv.Itoa(domain)).Inc()
}

func (m *Metrics) Miss(domain int) {
	if !m.enabled {
		return
	}

	m.hits.NumaCacheMissesTotal.WithLabelValues(strconv.Itoa(domain)).Inc()
}
