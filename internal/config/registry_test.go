package config

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name  string
		lim   Limits
		valid bool
	}{
		{"valid", Limits{Limit: 10, Window: 60}, true},
		{"minimal", Limits{Limit: 1, Window: 1}, true},
		{"zero limit", Limits{Limit: 0, Window: 60}, false},
		{"zero window", Limits{Limit: 10, Window: 0}, false},
		{"negative", Limits{Limit: -1, Window: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lim.Validate()
			testutil.AssertEqual(t, err == nil, tt.valid)
		})
	}
}

func TestRegistrySetAndGet(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewRegistry(st, Limits{Limit: 10, Window: 60}, discard())

	testutil.AssertEqual(t, r.Get(ctx), Limits{Limit: 10, Window: 60})

	testutil.AssertNoError(t, r.Set(ctx, Limits{Limit: 3, Window: 10}))
	testutil.AssertEqual(t, r.Get(ctx), Limits{Limit: 3, Window: 10})

	// The committed value is persisted for other instances.
	raw, ok, err := st.Get(ctx, ConfigKey)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, raw, `{"limit":3,"window":10}`)
}

func TestRegistrySetRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemory(), Limits{Limit: 10, Window: 60}, discard())

	if err := r.Set(ctx, Limits{Limit: 0, Window: 60}); err == nil {
		t.Fatal("expected validation error")
	}
	testutil.AssertEqual(t, r.Get(ctx), Limits{Limit: 10, Window: 60})
}

func TestRegistryObservesOtherWriters(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	writer := NewRegistry(st, Limits{Limit: 10, Window: 60}, discard())
	reader := NewRegistry(st, Limits{Limit: 10, Window: 60}, discard())

	// Make the reader's snapshot stale so the next Get hits the store.
	clock := testutil.NewMockClock(time.Now())
	reader.now = clock.Now

	testutil.AssertNoError(t, writer.Set(ctx, Limits{Limit: 5, Window: 30}))

	clock.Advance(2 * time.Second)
	testutil.AssertEqual(t, reader.Get(ctx), Limits{Limit: 5, Window: 30})
}

func TestRegistryIgnoresMalformedStoredConfig(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	testutil.AssertNoError(t, st.Set(ctx, ConfigKey, "{not json", 0))

	r := NewRegistry(st, Limits{Limit: 10, Window: 60}, discard())
	testutil.AssertEqual(t, r.Get(ctx), Limits{Limit: 10, Window: 60})
}

func TestRegistryResetToDefaults(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewRegistry(st, Limits{Limit: 10, Window: 60}, discard())

	testutil.AssertNoError(t, r.Set(ctx, Limits{Limit: 2, Window: 5}))
	testutil.AssertNoError(t, st.Del(ctx, ConfigKey))
	r.ResetToDefaults()

	testutil.AssertEqual(t, r.Get(ctx), Limits{Limit: 10, Window: 60})
}

func TestWindowDuration(t *testing.T) {
	testutil.AssertEqual(t, Limits{Limit: 1, Window: 90}.WindowDuration(), 90*time.Second)
}
