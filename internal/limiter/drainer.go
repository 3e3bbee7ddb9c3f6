package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/metrics"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// Drainer enforces the leaky bucket leak rate: a single background task
// that, once per second, removes from every active queue the entries that
// should have leaked since its last visit. It never admits or rejects.
//
// One drainer per process; the cron chain skips a tick while the previous
// one is still running. Multiple processes may drain concurrently without
// coordination because LPop is atomic, they simply share the work.
type Drainer struct {
	store    store.Store
	registry *config.Registry
	recorder *metrics.Recorder
	log      *slog.Logger
	now      func() time.Time

	cron *cron.Cron

	// mu guards buckets only. It is never held across store calls.
	mu      sync.Mutex
	buckets map[string]*drainState
}

// drainState is the per-bucket bookkeeping between ticks.
type drainState struct {
	lastDrain time.Time
	// carry accumulates the fractional leak left over from previous ticks
	// so the long-run drain rate converges to limit/window.
	carry float64
}

// NewDrainer creates a stopped drainer. Call Start to begin ticking.
func NewDrainer(st store.Store, reg *config.Registry, rec *metrics.Recorder, log *slog.Logger) *Drainer {
	d := &Drainer{
		store:    st,
		registry: reg,
		recorder: rec,
		log:      log.With("component", "drainer"),
		now:      time.Now,
		buckets:  make(map[string]*drainState),
	}

	d.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: d.log})),
	)
	return d
}

// Start schedules the 1-second tick and starts the scheduler.
func (d *Drainer) Start() error {
	if _, err := d.cron.AddFunc("* * * * * *", func() {
		d.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule drain tick: %w", err)
	}
	d.cron.Start()
	d.log.Info("drainer started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight tick, bounded by ctx.
func (d *Drainer) Stop(ctx context.Context) error {
	done := d.cron.Stop().Done()
	select {
	case <-done:
		d.log.Info("drainer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops all per-bucket bookkeeping. Used after an admin reset has
// deleted the underlying queues.
func (d *Drainer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buckets = make(map[string]*drainState)
}

// Tick drains every active bucket once. A failing bucket is logged and
// skipped; it must not stop the others from draining.
func (d *Drainer) Tick(ctx context.Context) {
	lim := d.registry.Get(ctx)

	ids, err := d.store.SMembers(ctx, ActiveLeakyBucketsKey)
	if err != nil {
		d.log.Error("listing active buckets failed", "error", err)
		return
	}
	d.recorder.ActiveBuckets.Set(float64(len(ids)))

	now := d.now()
	active := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
		if err := d.drainBucket(ctx, id, lim, now); err != nil {
			d.log.Error("draining bucket failed", "identity", id, "error", err)
		}
	}
	d.forget(active)
}

// drainBucket removes the entries that should have leaked from one queue
// and retires the bucket when it runs empty.
func (d *Drainer) drainBucket(ctx context.Context, id string, lim config.Limits, now time.Time) error {
	n := d.take(id, lim, now)

	key := leakyBucketKey(id)
	if n > 0 {
		popped, err := d.store.LPopCount(ctx, key, n)
		if err != nil {
			return err
		}
		d.recorder.Drained.Add(float64(len(popped)))
	}

	remaining, err := d.store.LLen(ctx, key)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := d.store.SRem(ctx, ActiveLeakyBucketsKey, id); err != nil {
			return err
		}
		if err := d.store.Del(ctx, key); err != nil {
			return err
		}
		d.mu.Lock()
		delete(d.buckets, id)
		d.mu.Unlock()
	}
	return nil
}

// take computes how many entries should leak from a bucket now, advancing
// its bookkeeping. A bucket seen for the first time starts leaking from this
// tick.
func (d *Drainer) take(id string, lim config.Limits, now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.buckets[id]
	if !ok {
		st = &drainState{lastDrain: now}
		d.buckets[id] = st
	}

	elapsed := now.Sub(st.lastDrain).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	st.lastDrain = now

	rate := float64(lim.Limit) / float64(lim.Window)
	leaked := elapsed*rate + st.carry
	n := int(leaked)
	st.carry = leaked - float64(n)
	return n
}

// forget drops bookkeeping for buckets no longer in the active set, e.g.
// after another instance retired them.
func (d *Drainer) forget(active map[string]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.buckets {
		if _, ok := active[id]; !ok {
			delete(d.buckets, id)
		}
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
