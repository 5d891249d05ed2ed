package auth

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const defaultLedgerShards = 16

// RevocationLedger remembers logged out tokens until they expire on their
// own. It is split in shards, each guarded by its own mutex, so callers
// never lock.
type RevocationLedger struct {
	shards    []*ledgerShard
	capacity  int
	retention time.Duration
	now       func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type ledgerShard struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	// oldest write at the front
	order *list.List
}

type revocationEntry struct {
	token     string
	expiresAt time.Time
	writtenAt time.Time
}

// LedgerStats is a point in time view of the ledger counters.
type LedgerStats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type LedgerOption func(*ledgerConfig)

type ledgerConfig struct {
	shards    int
	capacity  int
	retention time.Duration
	now       func() time.Time
}

// WithLedgerShards sets the number of shards, capped at the capacity.
func WithLedgerShards(n int) LedgerOption {
	return func(c *ledgerConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

func WithLedgerCapacity(n int) LedgerOption {
	return func(c *ledgerConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithLedgerRetention(d time.Duration) LedgerOption {
	return func(c *ledgerConfig) {
		if d > 0 {
			c.retention = d
		}
	}
}

func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(c *ledgerConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewRevocationLedger creates an empty ledger.
func NewRevocationLedger(opts ...LedgerOption) *RevocationLedger {
	cfg := ledgerConfig{
		capacity:  DefaultLedgerCapacity,
		retention: DefaultLedgerRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.shards == 0 {
		cfg.shards = defaultLedgerShards
	}
	if cfg.shards > cfg.capacity {
		cfg.shards = cfg.capacity
	}

	// shard capacities sum to exactly cfg.capacity
	base, extra := cfg.capacity/cfg.shards, cfg.capacity%cfg.shards

	l := &RevocationLedger{
		shards:    make([]*ledgerShard, cfg.shards),
		capacity:  cfg.capacity,
		retention: cfg.retention,
		now:       cfg.now,
	}
	for i := range l.shards {
		capacity := base
		if i < extra {
			capacity++
		}
		l.shards[i] = &ledgerShard{
			capacity: capacity,
			entries:  make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return l
}

func (l *RevocationLedger) shardFor(token string) *ledgerShard {
	if len(l.shards) == 1 {
		return l.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Revoke records token until naturalExpiry. Revoking the same token again
// overwrites the entry and refreshes its write time.
func (l *RevocationLedger) Revoke(token string, naturalExpiry time.Time) {
	if token == "" {
		return
	}
	now := l.now()
	s := l.shardFor(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[token]; ok {
		s.order.Remove(el)
		delete(s.entries, token)
	}

	evicted := s.evictStale(now, l.retention)

	for s.order.Len() >= s.capacity {
		s.removeOldest()
		evicted++
	}

	s.entries[token] = s.order.PushBack(&revocationEntry{
		token:     token,
		expiresAt: naturalExpiry,
		writtenAt: now,
	})

	if evicted > 0 {
		l.evictions.Add(uint64(evicted))
	}
}

// IsRevoked reports whether token was revoked and is still inside both its
// natural lifetime and the retention window.
func (l *RevocationLedger) IsRevoked(token string) bool {
	if token == "" {
		return false
	}
	now := l.now()
	s := l.shardFor(token)

	s.mu.Lock()
	el, ok := s.entries[token]
	if !ok {
		s.mu.Unlock()
		l.misses.Add(1)
		return false
	}

	entry := el.Value.(*revocationEntry)
	if !entry.live(now, l.retention) {
		s.order.Remove(el)
		delete(s.entries, token)
		s.mu.Unlock()
		l.evictions.Add(1)
		l.misses.Add(1)
		return false
	}
	s.mu.Unlock()

	l.hits.Add(1)
	return true
}

// Remove drops token from the ledger.
func (l *RevocationLedger) Remove(token string) {
	s := l.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[token]; ok {
		s.order.Remove(el)
		delete(s.entries, token)
	}
}

// Clear drops every entry. Counters are kept.
func (l *RevocationLedger) Clear() {
	for _, s := range l.shards {
		s.mu.Lock()
		s.entries = make(map[string]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
}

// Len returns the number of stored entries, stale ones included.
func (l *RevocationLedger) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Capacity returns the configured upper bound.
func (l *RevocationLedger) Capacity() int {
	return l.capacity
}

// Stats returns the ledger counters.
func (l *RevocationLedger) Stats() LedgerStats {
	return LedgerStats{
		Entries:   l.Len(),
		Hits:      l.hits.Load(),
		Misses:    l.misses.Load(),
		Evictions: l.evictions.Load(),
	}
}

func (e *revocationEntry) live(now time.Time, retention time.Duration) bool {
	if !now.Before(e.expiresAt) {
		return false
	}
	return now.Sub(e.writtenAt) < retention
}

// evictStale drops entries past the retention window from the front of
// the write order. Entries expired by their own exp are dropped lazily.
func (s *ledgerShard) evictStale(now time.Time, retention time.Duration) int {
	evicted := 0
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		entry := el.Value.(*revocationEntry)
		if now.Sub(entry.writtenAt) < retention {
			break
		}
		s.order.Remove(el)
		delete(s.entries, entry.token)
		evicted++
	}
	return evicted
}

func (s *ledgerShard) removeOldest() {
	el := s.order.Front()
	if el == nil {
		return
	}
	s.order.Remove(el)
	delete(s.entries, el.Value.(*revocationEntry).token)
}
