package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/testutil"
)

func TestLeakyBucketCapacity(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &leakyBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 10, Window: 60}

	// A burst of 20: the first 10 fill the queue, the rest overflow.
	for i := 0; i < 20; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, i < 10)
	}

	n, err := st.LLen(ctx, leakyBucketKey("A"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, int64(10))
}

func TestLeakyBucketTracksActiveIdentities(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &leakyBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 5, Window: 60}

	for _, id := range []string{"A", "B"} {
		allowed, err := e.allow(ctx, id, lim)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, allowed, true)
	}

	members, err := st.SMembers(ctx, ActiveLeakyBucketsKey)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(members), 2)

	// Rejections do not register identities.
	rejectedLim := config.Limits{Limit: 1, Window: 60}
	_, _ = e.allow(ctx, "A", rejectedLim)
	members, _ = st.SMembers(ctx, ActiveLeakyBucketsKey)
	testutil.AssertEqual(t, len(members), 2)
}

func TestLeakyBucketQueueNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &leakyBucketEngine{store: st, now: clock.Now}
	lim := config.Limits{Limit: 3, Window: 60}

	for i := 0; i < 50; i++ {
		_, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		n, err := st.LLen(ctx, leakyBucketKey("A"))
		testutil.AssertNoError(t, err)
		if n > 3 {
			t.Fatalf("queue length %d exceeds limit", n)
		}
	}
}
