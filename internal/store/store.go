// Package store abstracts the key-value store that holds all rate-limit
// state. Two backends implement it: a Redis-backed store and an in-process
// fake with identical semantics. Multi-step operations that must be atomic
// run as a Script: Lua on the Redis backend, a native twin under the fake's
// mutex.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend identifies which store implementation is active.
type Backend struct {
	Type string
	Fake bool
}

// Store is the key-value surface the rate limiter core depends on.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Get returns the string value at key. The second return is false when
	// the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a string value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes the value only if the key is absent. Reports whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer at key, creating it at 0 first,
	// and returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the key's ttl. A no-op on absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Del removes the given keys. Absent keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Keys returns all keys matching a glob pattern. Used only by reset and
	// introspection; not on the admission path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Sorted sets (score + member).
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRemRangeByScore(ctx context.Context, key string, max float64) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)

	// Lists.
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	LPopCount(ctx context.Context, key string, n int) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// RunScript executes a Script atomically: no other client observes an
	// intermediate state between its sub-steps.
	RunScript(ctx context.Context, s *Script, keys []string, args ...any) (any, error)

	// Backend reports which implementation is active.
	Backend() Backend

	// Close releases backend resources.
	Close() error
}

// Tx is the command surface a native script runs against. The memory store
// invokes the native function with its mutex held, so every Tx call within
// one script execution is a single atomic unit, mirroring Redis Lua.
type Tx interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Incr(key string) int64
	Expire(key string, ttl time.Duration)
	ZAdd(key string, score float64, member string)
	ZRemRangeByScore(key string, max float64) int64
	ZCard(key string) int64
	RPush(key string, values ...string) int64
	LLen(key string) int64
	SAdd(key string, members ...string)
}

// NativeScript is the Go twin of a Lua script, executed by the in-process
// store under its lock.
type NativeScript func(tx Tx, keys []string, args []any) (any, error)

// Script pairs a Lua source with its native twin. Both must produce the same
// result for the same inputs; the limiter tests exercise the native side and
// the Lua mirrors it line for line.
type Script struct {
	src    string
	native NativeScript
	lua    *redis.Script
}

// NewScript builds a Script from Lua source and its native twin.
func NewScript(src string, native NativeScript) *Script {
	return &Script{src: src, native: native, lua: redis.NewScript(src)}
}

// Src returns the Lua source.
func (s *Script) Src() string { return s.src }

// StoreError wraps a backend failure with the operation that hit it. Any
// StoreError on the admission path triggers the fail-open policy.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }
