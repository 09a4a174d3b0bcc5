package state

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// shardedLRU partitions keys over independently locked shards. Each shard is
// an LRU bounded to maxSize entries; entries idle for longer than ttl are
// treated as absent and dropped on access or by sweep.
//
// The total never exceeds maxEntries, but eviction is per shard: a shard can
// evict its least recent key while the whole cache is below the cap.
type shardedLRU[V any] struct {
	shards []*lruShard[V]
	ttl    time.Duration
	now    func() time.Time
}

type lruShard[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type lruEntry[V any] struct {
	key       string
	value     V
	touchedAt time.Time
}

func newShardedLRU[V any](shards, maxEntries int, ttl time.Duration) *shardedLRU[V] {
	if shards <= 0 {
		shards = 64
	}
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	if shards > maxEntries {
		shards = maxEntries
	}

	perShard := maxEntries / shards
	s := &shardedLRU[V]{
		shards: make([]*lruShard[V], shards),
		ttl:    ttl,
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &lruShard[V]{
			maxSize: perShard,
			items:   make(map[string]*list.Element),
			order:   list.New(),
		}
	}
	return s
}

func (s *shardedLRU[V]) shardFor(key string) *lruShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// update runs fn on the current value of key (found=false when absent or
// idle-expired) while holding the shard lock, and stores what fn returns.
// Every read-modify-write on a key goes through update.
func (s *shardedLRU[V]) update(key string, fn func(current V, found bool) V) {
	shard := s.shardFor(key)
	now := s.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if elem, ok := shard.items[key]; ok {
		entry := elem.Value.(*lruEntry[V])
		if s.expired(entry, now) {
			shard.removeElement(elem)
		} else {
			entry.value = fn(entry.value, true)
			entry.touchedAt = now
			shard.order.MoveToFront(elem)
			return
		}
	}

	var zero V
	entry := &lruEntry[V]{
		key:       key,
		value:     fn(zero, false),
		touchedAt: now,
	}
	shard.items[key] = shard.order.PushFront(entry)

	// Evict least recently used users if over capacity
	for shard.order.Len() > shard.maxSize {
		shard.removeOldest()
	}
}

// sweep drops every entry idle since before now-ttl and returns the count.
func (s *shardedLRU[V]) sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		// Oldest entries sit at the back; stop at the first live one.
		for elem := shard.order.Back(); elem != nil; elem = shard.order.Back() {
			if !s.expired(elem.Value.(*lruEntry[V]), now) {
				break
			}
			shard.removeElement(elem)
			removed++
		}
		shard.mu.Unlock()
	}
	return removed
}

func (s *shardedLRU[V]) len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += shard.order.Len()
		shard.mu.Unlock()
	}
	return n
}

func (s *shardedLRU[V]) reset() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.items = make(map[string]*list.Element)
		shard.order = list.New()
		shard.mu.Unlock()
	}
}

func (s *shardedLRU[V]) expired(entry *lruEntry[V], now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.touchedAt) > s.ttl
}

func (sh *lruShard[V]) removeElement(elem *list.Element) {
	sh.order.Remove(elem)
	delete(sh.items, elem.Value.(*lruEntry[V]).key)
}

func (sh *lruShard[V]) removeOldest() {
	if elem := sh.order.Back(); elem != nil {
		sh.removeElement(elem)
	}
}
