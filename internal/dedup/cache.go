// Package dedup implements the fingerprint/dedup cache: a bounded,
// LRU-evicted record of recently seen messages that guarantees
// at-most-once local delivery and at-most-once relay.
package dedup

import (
	"container/list"
	"sync"
	"time"

	"github.com/signalair/mesh/internal/wire"
)

// DefaultCapacity is the default capacity of each of the two bounded
// maps (the seen-message set and the replay table).
const DefaultCapacity = 4096

// Verdict is the result of Observe.
type Verdict uint8

const (
	// FirstSeen indicates the message (by id, and by content+timestamp)
	// had not previously been observed; it has now been recorded.
	FirstSeen Verdict = iota
	// Duplicate indicates the message id or its (content_hash,
	// origin_timestamp) replay key had already been observed.
	Duplicate
)

// String renders the verdict for logging.
func (v Verdict) String() string {
	if v == FirstSeen {
		return "first-seen"
	}
	return "duplicate"
}

// entry is a node held by both the LRU list and the lookup index of one
// of the two bounded maps.
type entry struct {
	key       any
	firstSeen time.Time
}

// lruMap is a capacity-bounded map with insertion-order LRU eviction.
type lruMap struct {
	capacity int
	order    *list.List // front = most recently inserted
	index    map[any]*list.Element
}

func newLRUMap(capacity int) *lruMap {
	return &lruMap{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[any]*list.Element, capacity),
	}
}

// containsOrInsert returns true if key was already present; otherwise it
// inserts key with firstSeen and evicts the oldest entry if the map is
// now over capacity.
func (m *lruMap) containsOrInsert(key any, firstSeen time.Time) (existed bool, evictedKey any, evicted bool) {
	if _, ok := m.index[key]; ok {
		return true, nil, false
	}

	el := m.order.PushFront(&entry{key: key, firstSeen: firstSeen})
	m.index[key] = el

	if m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			ev := oldest.Value.(*entry).key
			delete(m.index, ev)
			return false, ev, true
		}
	}
	return false, nil, false
}

func (m *lruMap) len() int {
	return m.order.Len()
}

func (m *lruMap) clear() {
	m.order.Init()
	m.index = make(map[any]*list.Element, m.capacity)
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	Count           int
	Capacity        int
	UtilizationRate float64
}

// Cache is the fingerprint/dedup cache. It is confined to the mesh
// execution context and therefore uses a plain mutex rather than
// anything lock-free; callers on the mesh context never contend with
// each other by construction, but the mutex keeps Stats safe to call
// from foreign contexts too.
type Cache struct {
	mu       sync.Mutex
	byID     *lruMap
	byReplay *lruMap
	nowFunc  func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacities overrides the default N_dedup/N_replay capacities.
func WithCapacities(idCapacity, replayCapacity int) Option {
	return func(c *Cache) {
		c.byID = newLRUMap(idCapacity)
		c.byReplay = newLRUMap(replayCapacity)
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = now }
}

// NewCache builds a Cache with DefaultCapacity for both tables unless
// overridden via WithCapacities.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		byID:     newLRUMap(DefaultCapacity),
		byReplay: newLRUMap(DefaultCapacity),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe performs an atomic check-and-insert against both the id table
// and the replay table. A message is Duplicate if
// either table already contains its key; a replay with an identical
// (content_hash, origin_timestamp) but a different id is still treated
// as Duplicate, closing the id-rewriting replay hole. Eviction is LRU on
// insert; a message evicted and later re-received is FirstSeen again.
func (c *Cache) Observe(m wire.Message) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()

	idExisted, _, _ := c.byID.containsOrInsert(m.ID, now)
	replayExisted, _, _ := c.byReplay.containsOrInsert(m.Replay(), now)

	if idExisted || replayExisted {
		return Duplicate
	}
	return FirstSeen
}

// Clear empties both maps.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID.clear()
	c.byReplay.clear()
}

// Stats returns a point-in-time snapshot of id-table occupancy. The
// replay table is sized identically and tracked the same way, so the id
// table's utilization is representative of the cache as a whole.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.byID.len()
	capacity := c.byID.capacity
	var util float64
	if capacity > 0 {
		util = float64(count) / float64(capacity)
	}
	return Stats{Count: count, Capacity: capacity, UtilizationRate: util}
}
