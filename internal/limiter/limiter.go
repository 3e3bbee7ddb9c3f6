// Package limiter implements the rate-limiting decision core: five
// admission algorithms over shared store state, the orchestrator that
// dispatches between them, and the leaky bucket drainer.
//
// Every multi-step decision runs as a single atomic script against the
// store, so concurrent requests and horizontally scaled instances cannot
// interleave between an algorithm's sub-steps.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/metrics"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// Algorithm selects an admission strategy.
type Algorithm string

const (
	FixedWindow          Algorithm = "fixed_window"
	SlidingWindowLog     Algorithm = "sliding_window_log"
	SlidingWindowCounter Algorithm = "sliding_window_counter"
	TokenBucket          Algorithm = "token_bucket"
	LeakyBucket          Algorithm = "leaky_bucket"
)

// DefaultAlgorithm is used when a request names no algorithm or an unknown
// one.
const DefaultAlgorithm = FixedWindow

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{FixedWindow, SlidingWindowLog, SlidingWindowCounter, TokenBucket, LeakyBucket}
}

// ParseAlgorithm maps a request parameter to an Algorithm, falling back to
// the default for unknown names.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case FixedWindow, SlidingWindowLog, SlidingWindowCounter, TokenBucket, LeakyBucket:
		return Algorithm(s)
	default:
		return DefaultAlgorithm
	}
}

// Store key layout. Identities are used verbatim.
const (
	// ActiveLeakyBucketsKey is the set of identities with pending queue
	// state, consumed by the drainer.
	ActiveLeakyBucketsKey = "active_leaky_buckets"

	keyPrefix      = "ratelimit:"
	leakyKeyPrefix = "leaky_bucket:"
)

func fixedWindowKey(id string) string { return keyPrefix + string(FixedWindow) + ":" + id }

func slidingLogKey(id string) string { return keyPrefix + string(SlidingWindowLog) + ":" + id }

func slidingCounterKey(id string, slice int64) string {
	return keyPrefix + string(SlidingWindowCounter) + ":" + id + ":" + strconv.FormatInt(slice, 10)
}

func tokenBucketKey(id string) string { return keyPrefix + string(TokenBucket) + ":" + id }

func leakyBucketKey(id string) string { return leakyKeyPrefix + id }

// Decision is the outcome of one admission check.
type Decision struct {
	Algorithm Algorithm
	Allowed   bool
	// FailedOpen marks decisions granted only because the store was
	// unreachable.
	FailedOpen bool
}

// engine is one admission decider.
type engine interface {
	allow(ctx context.Context, id string, lim config.Limits) (bool, error)
}

// Service is the admission orchestrator: it picks the engine, applies the
// failure policy and records metrics.
type Service struct {
	store      store.Store
	registry   *config.Registry
	recorder   *metrics.Recorder
	log        *slog.Logger
	failClosed bool

	engines map[Algorithm]engine
}

// Option configures a Service.
type Option func(*Service)

// WithFailClosed rejects instead of admitting when the store is
// unreachable. The default is fail-open for availability.
func WithFailClosed(on bool) Option {
	return func(s *Service) { s.failClosed = on }
}

// WithClock injects the time source used by every engine.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.engines = buildEngines(s.store, now)
	}
}

// New creates the admission service over a store, a configuration registry
// and a metrics recorder.
func New(st store.Store, reg *config.Registry, rec *metrics.Recorder, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		registry: reg,
		recorder: rec,
		log:      log.With("component", "limiter"),
		engines:  buildEngines(st, time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func buildEngines(st store.Store, now func() time.Time) map[Algorithm]engine {
	return map[Algorithm]engine{
		FixedWindow:          &fixedWindowEngine{store: st},
		SlidingWindowLog:     &slidingWindowLogEngine{store: st, now: now},
		SlidingWindowCounter: &slidingWindowCounterEngine{store: st, now: now},
		TokenBucket:          &tokenBucketEngine{store: st, now: now},
		LeakyBucket:          &leakyBucketEngine{store: st, now: now},
	}
}

// Check runs one admission decision for an identity. Store failures admit
// (fail-open) unless the service is configured fail-closed; the leaky bucket
// always rejects when its enqueue fails, since an unenqueued request can
// never be drained.
func (s *Service) Check(ctx context.Context, id, algoParam string) Decision {
	algo := ParseAlgorithm(algoParam)
	s.recorder.ObserveRequest(ctx, id, string(algo))

	lim := s.registry.Get(ctx)

	allowed, err := s.engines[algo].allow(ctx, id, lim)
	decision := Decision{Algorithm: algo, Allowed: allowed}
	if err != nil {
		s.log.Error("admission check failed", "algorithm", algo, "identity", id, "error", err)
		switch {
		case algo == LeakyBucket, s.failClosed:
			decision.Allowed = false
		default:
			decision.Allowed = true
			decision.FailedOpen = true
		}
	}

	if !decision.Allowed {
		s.recorder.ObserveRejection(ctx, string(algo))
	}
	return decision
}

// Reset deletes every rate-limit, queue, metric and configuration key. It is
// idempotent: a second reset finds nothing to delete.
func (s *Service) Reset(ctx context.Context) error {
	for _, pattern := range []string{keyPrefix + "*", leakyKeyPrefix + "*"} {
		keys, err := s.store.Keys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("list %q: %w", pattern, err)
		}
		if err := s.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete %q: %w", pattern, err)
		}
	}

	if err := s.store.Del(ctx,
		ActiveLeakyBucketsKey,
		metrics.KeyTotalRequests,
		metrics.KeyTotal429s,
		metrics.KeyActiveIPs,
		config.ConfigKey,
	); err != nil {
		return fmt.Errorf("delete globals: %w", err)
	}

	s.registry.ResetToDefaults()
	return nil
}

// argInt converts a script argument to an int64. Arguments cross the script
// boundary as strings or numbers depending on backend.
func argInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// argFloat converts a script argument to a float64.
func argFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// argString converts a script argument to its string form.
func argString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

// scriptAllowed interprets a script's 0/1 verdict.
func scriptAllowed(v any) bool {
	return argInt(v) == 1
}

// unixSeconds renders a time as fractional seconds for script arguments and
// sorted-set scores.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
