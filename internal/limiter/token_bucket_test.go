package limiter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/testutil"
)

func TestTokenBucketRefill(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &tokenBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	// A full bucket drains in one burst.
	for i := 0; i < 10; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, true)
	}
	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// At t=6 one token has refilled at limit/window = 1/6 per second.
	clock.Advance(6 * time.Second)
	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)

	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// A minute later the bucket is full again, and no fuller.
	clock.Advance(60 * time.Second)
	for i := 0; i < 10; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, true)
	}
	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)
}

func TestTokenBucketStoredRecord(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &tokenBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	_, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)

	raw, ok, err := st.Get(ctx, tokenBucketKey("A"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)

	var rec bucketRecord
	testutil.AssertNoError(t, json.Unmarshal([]byte(raw), &rec))
	testutil.AssertEqual(t, rec.Tokens, 9.0)
	testutil.AssertEqual(t, rec.LastRefill, 1000.0)
}

func TestTokenBucketCorruptRecordReinitializes(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &tokenBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	testutil.AssertNoError(t, st.Set(ctx, tokenBucketKey("A"), "{corrupt", 0))

	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)
}

func TestTokenBucketClockDrift(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &tokenBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	_, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)

	// A clock stepping backwards must not mint tokens or corrupt state.
	clock.Set(time.Unix(990, 0))
	for i := 0; i < 9; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, true)
	}
	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)
}
