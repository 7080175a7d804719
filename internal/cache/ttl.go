package cache

import (
	"container/heap"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// entry is one cached value; index is its position in the age heap.
type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
	seq      uint64
	index    int
}

func older[K comparable, V any](a, b *entry[K, V]) bool {
	if a.storedAt.Equal(b.storedAt) {
		return a.seq < b.seq
	}
	return a.storedAt.Before(b.storedAt)
}

func sortByAge[K comparable, V any](es []*entry[K, V]) {
	sort.Slice(es, func(i, j int) bool { return older(es[i], es[j]) })
}

// ageHeap orders entries by insertion time, oldest first.
type ageHeap[K comparable, V any] []*entry[K, V]

func (h ageHeap[K, V]) Len() int           { return len(h) }
func (h ageHeap[K, V]) Less(i, j int) bool { return older(h[i], h[j]) }
func (h ageHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ageHeap[K, V]) Push(x any) {
	e := x.(*entry[K, V])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *ageHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TTL is a bounded, thread-safe cache whose entries expire ttl after they
// were stored. When full, storing a new key evicts the oldest entry.
// It never starts goroutines; expired entries are purged on read or by Sweep.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*entry[K, V]
	ages     ageHeap[K, V]
	now      func() time.Time
	metrics  *Metrics
	seq      uint64

	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *Metrics
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache holding at most capacity entries for ttl each.
// A non-positive ttl disables expiry.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &TTL[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*entry[K, V]),
		now:      o.now,
		metrics:  o.metrics,
	}
}

func (c *TTL[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl
}

// Get returns the value for key if present and fresh.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok && c.expired(e, c.now()) {
		c.removeLocked(e)
		c.expirations.Add(1)
		c.metrics.recordExpiration()
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		c.metrics.recordMiss()
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	c.metrics.recordHit()
	return e.value, true
}

// Set stores value under key, refreshing its age if the key exists.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sets.Add(1)
	c.metrics.recordSet()

	if e, ok := c.items[key]; ok {
		c.seq++
		e.value = value
		e.storedAt = now
		e.seq = c.seq
		heap.Fix(&c.ages, e.index)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.ages[0]
		c.removeLocked(oldest)
		c.evictions.Add(1)
		c.metrics.recordEviction()
	}

	c.seq++
	e := &entry[K, V]{key: key, value: value, storedAt: now, seq: c.seq}
	heap.Push(&c.ages, e)
	c.items[key] = e
	c.metrics.updateSize(len(c.items))
}

// Delete removes key and reports whether it was present.
func (c *TTL[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok {
		c.removeLocked(e)
	}
	return ok
}

// DeleteFunc removes every entry for which fn returns true.
func (c *TTL[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*entry[K, V]
	for _, e := range c.items {
		if fn(e.key, e.value) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		c.removeLocked(e)
	}
	return len(doomed)
}

// Sweep purges all expired entries and returns how many were removed.
func (c *TTL[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for len(c.ages) > 0 && c.expired(c.ages[0], now) {
		c.removeLocked(c.ages[0])
		removed++
	}
	c.expirations.Add(int64(removed))
	for i := 0; i < removed; i++ {
		c.metrics.recordExpiration()
	}
	return removed
}

func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*entry[K, V])
	c.ages = nil
	c.metrics.updateSize(0)
}

func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Values returns up to limit fresh values, oldest first. limit <= 0 means all.
func (c *TTL[K, V]) Values(limit int) []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	sorted := make([]*entry[K, V], len(c.ages))
	copy(sorted, c.ages)
	// heap order is not insertion order; sort a copy without touching indices
	sortByAge(sorted)

	var out []V
	for _, e := range sorted {
		if c.expired(e, now) {
			continue
		}
		out = append(out, e.value)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (c *TTL[K, V]) removeLocked(e *entry[K, V]) {
	if e.index >= 0 && e.index < len(c.ages) && c.ages[e.index] == e {
		heap.Remove(&c.ages, e.index)
	}
	delete(c.items, e.key)
	c.metrics.updateSize(len(c.items))
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

func (c *TTL[K, V]) Stats() Stats {
	s := Stats{
		Size:        c.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
