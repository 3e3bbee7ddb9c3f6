package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/testutil"
)

func TestSlidingWindowCounterWeightedEstimate(t *testing.T) {
	ctx := context.Background()
	// Start on a slice boundary so offsets are exact.
	clock := testutil.NewMockClock(time.Unix(3600, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &slidingWindowCounterEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	// Fill the first slice.
	clock.Advance(time.Second)
	for i := 0; i < 10; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, true)
	}
	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// Exactly on the next slice boundary the offset is zero, so the
	// previous slice counts in full: estimate = 1.0*10 + 0 = limit.
	clock.Advance(59 * time.Second)
	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// 30% into the slice the previous window is weighted at 0.7:
	// estimate = 7 < 10.
	clock.Advance(18 * time.Second)
	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)
}

func TestSlidingWindowCounterMissingSlicesReadZero(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(7200, 30))
	st := store.NewMemoryWithClock(clock.Now)
	e := &slidingWindowCounterEngine{store: st, now: clock.Now}

	allowed, err := e.allow(ctx, "fresh", config.Limits{Limit: 1, Window: 60})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)
}

func TestSlidingWindowCounterIncrementsOnlyOnAdmit(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(3600, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &slidingWindowCounterEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 2, Window: 60}

	clock.Advance(time.Second)
	for i := 0; i < 2; i++ {
		allowed, _ := e.allow(ctx, "A", lim)
		testutil.AssertEqual(t, allowed, true)
	}
	for i := 0; i < 5; i++ {
		allowed, _ := e.allow(ctx, "A", lim)
		testutil.AssertEqual(t, allowed, false)
	}

	// Rejected attempts leave the slice counter untouched.
	raw, ok, err := st.Get(ctx, slidingCounterKey("A", 60))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, raw, "2")
}
