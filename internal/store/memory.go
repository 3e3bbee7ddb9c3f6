package store

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type entryKind int

const (
	kindString entryKind = iota
	kindList
	kindZSet
	kindSet
)

// entry is one keyed value in the memory store. A key holds exactly one kind
// at a time, as in Redis.
type entry struct {
	kind     entryKind
	str      string
	list     []string
	zset     map[string]float64
	set      map[string]struct{}
	expireAt time.Time
}

// memStore is the in-process fake backend. A single mutex serializes every
// operation, so a NativeScript run under RunScript is exactly as atomic as
// its Lua twin on Redis. TTLs expire lazily on access.
type memStore struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() Store {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-process store with an injected clock,
// used by tests to drive TTL expiry deterministically.
func NewMemoryWithClock(now func() time.Time) Store {
	return &memStore{data: make(map[string]*entry), now: now}
}

func (s *memStore) Ping(context.Context) error { return nil }

// live returns the entry at key, dropping it first if its TTL has passed.
func (s *memStore) live(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	return v, ok, nil
}

func (s *memStore) get(key string) (string, bool) {
	e := s.live(key)
	if e == nil || e.kind != kindString {
		return "", false
	}
	return e.str, true
}

func (s *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *memStore) set(key, value string, ttl time.Duration) {
	e := &entry{kind: kindString, str: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
}

func (s *memStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

func (s *memStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incr(key), nil
}

func (s *memStore) incr(key string) int64 {
	e := s.live(key)
	var n int64
	if e != nil && e.kind == kindString {
		n, _ = strconv.ParseInt(e.str, 10, 64)
		n++
		e.str = strconv.FormatInt(n, 10)
		return n
	}
	n = 1
	s.data[key] = &entry{kind: kindString, str: "1"}
	return n
}

func (s *memStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(key, ttl)
	return nil
}

func (s *memStore) expire(key string, ttl time.Duration) {
	if e := s.live(key); e != nil {
		e.expireAt = s.now().Add(ttl)
	}
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.data {
		if s.live(key) == nil {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zadd(key, score, member)
	return nil
}

func (s *memStore) zadd(key string, score float64, member string) {
	e := s.live(key)
	if e == nil || e.kind != kindZSet {
		e = &entry{kind: kindZSet, zset: make(map[string]float64)}
		s.data[key] = e
	}
	e.zset[member] = score
}

func (s *memStore) ZRemRangeByScore(_ context.Context, key string, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zremRangeByScore(key, max), nil
}

func (s *memStore) zremRangeByScore(key string, max float64) int64 {
	e := s.live(key)
	if e == nil || e.kind != kindZSet {
		return 0
	}
	var removed int64
	for member, score := range e.zset {
		if score <= max {
			delete(e.zset, member)
			removed++
		}
	}
	if len(e.zset) == 0 {
		delete(s.data, key)
	}
	return removed
}

func (s *memStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zcard(key), nil
}

func (s *memStore) zcard(key string) int64 {
	e := s.live(key)
	if e == nil || e.kind != kindZSet {
		return 0
	}
	return int64(len(e.zset))
}

func (s *memStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindZSet {
		return 0, nil
	}
	var n int64
	for _, score := range e.zset {
		if score >= min && score <= max {
			n++
		}
	}
	return n, nil
}

func (s *memStore) RPush(_ context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpush(key, values...), nil
}

func (s *memStore) rpush(key string, values ...string) int64 {
	e := s.live(key)
	if e == nil || e.kind != kindList {
		e = &entry{kind: kindList}
		s.data[key] = e
	}
	e.list = append(e.list, values...)
	return int64(len(e.list))
}

func (s *memStore) LPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := s.lpopCount(key, 1)
	if len(vals) == 0 {
		return "", false, nil
	}
	return vals[0], true, nil
}

func (s *memStore) LPopCount(_ context.Context, key string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lpopCount(key, n), nil
}

func (s *memStore) lpopCount(key string, n int) []string {
	e := s.live(key)
	if e == nil || e.kind != kindList || n <= 0 {
		return nil
	}
	if n > len(e.list) {
		n = len(e.list)
	}
	popped := make([]string, n)
	copy(popped, e.list[:n])
	e.list = e.list[n:]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
	return popped
}

func (s *memStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llen(key), nil
}

func (s *memStore) llen(key string) int64 {
	e := s.live(key)
	if e == nil || e.kind != kindList {
		return 0
	}
	return int64(len(e.list))
}

func (s *memStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindList {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *memStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sadd(key, members...)
	return nil
}

func (s *memStore) sadd(key string, members ...string) {
	e := s.live(key)
	if e == nil || e.kind != kindSet {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		s.data[key] = e
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
}

func (s *memStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindSet {
		return nil
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindSet {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *memStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindSet {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (s *memStore) RunScript(_ context.Context, script *Script, keys []string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return script.native(&memTx{s: s}, keys, args)
}

func (s *memStore) Backend() Backend {
	return Backend{Type: "memory", Fake: true}
}

func (s *memStore) Close() error { return nil }

// memTx exposes the unlocked operations to a native script. The store's
// mutex is held for the whole script run.
type memTx struct {
	s *memStore
}

func (t *memTx) Get(key string) (string, bool)        { return t.s.get(key) }
func (t *memTx) Set(key, value string, ttl time.Duration) { t.s.set(key, value, ttl) }
func (t *memTx) Incr(key string) int64                { return t.s.incr(key) }
func (t *memTx) Expire(key string, ttl time.Duration) { t.s.expire(key, ttl) }
func (t *memTx) ZAdd(key string, score float64, member string) {
	t.s.zadd(key, score, member)
}
func (t *memTx) ZRemRangeByScore(key string, max float64) int64 {
	return t.s.zremRangeByScore(key, max)
}
func (t *memTx) ZCard(key string) int64                 { return t.s.zcard(key) }
func (t *memTx) RPush(key string, values ...string) int64 { return t.s.rpush(key, values...) }
func (t *memTx) LLen(key string) int64                  { return t.s.llen(key) }
func (t *memTx) SAdd(key string, members ...string)     { t.s.sadd(key, members...) }

// formatScore renders a float score the way Redis range commands expect.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
