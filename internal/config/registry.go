package config

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// ConfigKey is the store key holding the committed rate-limit configuration.
const ConfigKey = "config:rate_limit"

// ErrInvalidLimits rejects configurations with a non-positive limit or window.
var ErrInvalidLimits = errors.New("limit and window must be >= 1")

// Limits is the global rate-limit configuration: at most Limit admissions per
// identity per Window seconds.
type Limits struct {
	Limit  int `json:"limit"`
	Window int `json:"window"`
}

// WindowDuration returns the window as a duration.
func (l Limits) WindowDuration() time.Duration {
	return time.Duration(l.Window) * time.Second
}

// Validate reports whether the limits are usable.
func (l Limits) Validate() error {
	if l.Limit < 1 || l.Window < 1 {
		return ErrInvalidLimits
	}
	return nil
}

// Registry is the process-wide view of the dynamic configuration. Reads are
// lock-free against an atomic snapshot refreshed from the store with bounded
// staleness; writes are serialized and persist to the store so that other
// instances observe the change.
type Registry struct {
	store    store.Store
	defaults Limits
	maxStale time.Duration
	log      *slog.Logger
	now      func() time.Time

	cur       atomic.Pointer[Limits]
	fetchedAt atomic.Int64

	mu sync.Mutex
}

// NewRegistry creates a registry seeded with defaults. The snapshot is
// re-read from the store when older than one second, well inside the
// one-window staleness bound.
func NewRegistry(st store.Store, defaults Limits, log *slog.Logger) *Registry {
	r := &Registry{
		store:    st,
		defaults: defaults,
		maxStale: time.Second,
		log:      log.With("component", "config"),
		now:      time.Now,
	}
	r.cur.Store(&defaults)
	return r
}

// Get returns the most recently committed limits. A stale snapshot triggers
// a store read; a failing store degrades to the cached value.
func (r *Registry) Get(ctx context.Context) Limits {
	if r.now().UnixNano()-r.fetchedAt.Load() < r.maxStale.Nanoseconds() {
		return *r.cur.Load()
	}

	raw, ok, err := r.store.Get(ctx, ConfigKey)
	if err != nil {
		r.log.Warn("config read failed, using cached limits", "error", err)
		return *r.cur.Load()
	}
	r.fetchedAt.Store(r.now().UnixNano())
	if !ok {
		return *r.cur.Load()
	}

	var lim Limits
	if err := json.Unmarshal([]byte(raw), &lim); err != nil || lim.Validate() != nil {
		r.log.Warn("ignoring malformed stored config", "raw", raw)
		return *r.cur.Load()
	}
	r.cur.Store(&lim)
	return lim
}

// Set validates, persists and publishes new limits. Writers are serialized.
func (r *Registry) Set(ctx context.Context, lim Limits) error {
	if err := lim.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.Marshal(lim)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, ConfigKey, string(raw), 0); err != nil {
		return err
	}
	r.cur.Store(&lim)
	r.fetchedAt.Store(r.now().UnixNano())
	r.log.Info("rate limit updated", "limit", lim.Limit, "window", lim.Window)
	return nil
}

// ResetToDefaults restores the compiled-in defaults after an admin reset has
// deleted the stored configuration.
func (r *Registry) ResetToDefaults() {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.defaults
	r.cur.Store(&d)
	r.fetchedAt.Store(0)
}

// Defaults returns the seed configuration.
func (r *Registry) Defaults() Limits { return r.defaults }
