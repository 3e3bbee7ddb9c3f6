package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

func newRecorder(st store.Store) (*Recorder, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecorder(st, reg, log), reg
}

func TestObserveAndSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	rec, _ := newRecorder(st)

	rec.ObserveRequest(ctx, "1.2.3.4", "fixed_window")
	rec.ObserveRequest(ctx, "1.2.3.4", "token_bucket")
	rec.ObserveRequest(ctx, "5.6.7.8", "fixed_window")
	rec.ObserveRejection(ctx, "fixed_window")

	snap, err := rec.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.Total429s != 1 {
		t.Errorf("Total429s = %d, want 1", snap.Total429s)
	}
	if snap.ActiveIPs != 2 {
		t.Errorf("ActiveIPs = %d, want 2", snap.ActiveIPs)
	}
}

func TestPrometheusMirrors(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	rec, _ := newRecorder(st)

	rec.ObserveRequest(ctx, "1.2.3.4", "fixed_window")
	rec.ObserveRequest(ctx, "1.2.3.4", "fixed_window")
	rec.ObserveRejection(ctx, "fixed_window")

	if got := testutil.ToFloat64(rec.requests.WithLabelValues("fixed_window")); got != 2 {
		t.Errorf("requests counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.rejected.WithLabelValues("fixed_window")); got != 1 {
		t.Errorf("rejected counter = %v, want 1", got)
	}
}

// failingStore refuses every write so recording must degrade gracefully.
type failingStore struct {
	store.Store
}

func (f *failingStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("down")
}

func (f *failingStore) SAdd(context.Context, string, ...string) error {
	return errors.New("down")
}

func TestRecordingIsBestEffort(t *testing.T) {
	ctx := context.Background()
	rec, _ := newRecorder(&failingStore{Store: store.NewMemory()})

	// Neither call may panic or block; failures are logged and dropped.
	rec.ObserveRequest(ctx, "1.2.3.4", "fixed_window")
	rec.ObserveRejection(ctx, "fixed_window")
}

func TestSnapshotEmptyStore(t *testing.T) {
	ctx := context.Background()
	rec, _ := newRecorder(store.NewMemory())

	snap, err := rec.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap != (Snapshot{}) {
		t.Errorf("empty store snapshot = %+v, want zeros", snap)
	}
}
