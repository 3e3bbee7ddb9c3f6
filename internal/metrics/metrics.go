// Package metrics records global traffic counters in the store and mirrors
// them into Prometheus. Recording is best-effort: a failing store never
// blocks an admission decision.
package metrics

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// Store keys for the global counters.
const (
	KeyTotalRequests = "global:total_requests"
	KeyTotal429s     = "global:total_429s"
	KeyActiveIPs     = "global:active_ips"
)

// Snapshot is the monitoring view of the global counters.
type Snapshot struct {
	TotalRequests int64
	Total429s     int64
	ActiveIPs     int64
}

// Recorder increments the store-backed counters and the process-local
// Prometheus mirrors.
type Recorder struct {
	store store.Store
	log   *slog.Logger

	requests *prometheus.CounterVec
	rejected *prometheus.CounterVec

	// Drainer instrumentation, updated by the leaky bucket worker.
	ActiveBuckets prometheus.Gauge
	Drained       prometheus.Counter
}

// NewRecorder registers the Prometheus collectors on reg and returns a
// recorder writing global counters to st.
func NewRecorder(st store.Store, reg prometheus.Registerer, log *slog.Logger) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		store: st,
		log:   log.With("component", "metrics"),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimiter",
			Name:      "requests_total",
			Help:      "Total number of requests observed",
		}, []string{"algorithm"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimiter",
			Name:      "rejected_total",
			Help:      "Total number of requests rejected with 429",
		}, []string{"algorithm"}),
		ActiveBuckets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ratelimiter",
			Name:      "active_leaky_buckets",
			Help:      "Number of leaky bucket queues with pending entries",
		}),
		Drained: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ratelimiter",
			Name:      "drained_total",
			Help:      "Total number of entries removed by the leaky bucket drainer",
		}),
	}
}

// ObserveRequest records one observed request for an identity.
func (r *Recorder) ObserveRequest(ctx context.Context, id, algorithm string) {
	r.requests.WithLabelValues(algorithm).Inc()

	if _, err := r.store.Incr(ctx, KeyTotalRequests); err != nil {
		r.log.Warn("request counter increment failed", "error", err)
	}
	if err := r.store.SAdd(ctx, KeyActiveIPs, id); err != nil {
		r.log.Warn("active identity record failed", "error", err)
	}
}

// ObserveRejection records one 429.
func (r *Recorder) ObserveRejection(ctx context.Context, algorithm string) {
	r.rejected.WithLabelValues(algorithm).Inc()

	if _, err := r.store.Incr(ctx, KeyTotal429s); err != nil {
		r.log.Warn("rejection counter increment failed", "error", err)
	}
}

// Snapshot reads the global counters for the monitoring endpoint.
func (r *Recorder) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	raw, ok, err := r.store.Get(ctx, KeyTotalRequests)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.TotalRequests, _ = strconv.ParseInt(raw, 10, 64)
	}

	raw, ok, err = r.store.Get(ctx, KeyTotal429s)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.Total429s, _ = strconv.ParseInt(raw, 10, 64)
	}

	snap.ActiveIPs, err = r.store.SCard(ctx, KeyActiveIPs)
	if err != nil {
		return snap, err
	}
	return snap, nil
}
