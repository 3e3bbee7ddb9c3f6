package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/testutil"
)

func TestFixedWindowBurst(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	st := store.NewMemoryWithClock(clock.Now)
	e := &fixedWindowEngine{store: st}
	lim := config.Limits{Limit: 10, Window: 60}

	for i := 0; i < 10; i++ {
		allowed, err := e.allow(ctx, "A", lim)
		testutil.AssertNoError(t, err)
		if !allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	clock.Advance(500 * time.Millisecond)
	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// The counter expires with the window; a fresh window admits again.
	clock.Advance(59600 * time.Millisecond)
	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)
}

func TestFixedWindowPerIdentity(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e := &fixedWindowEngine{store: st}
	lim := config.Limits{Limit: 1, Window: 60}

	allowed, err := e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)

	allowed, err = e.allow(ctx, "A", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, false)

	// A different identity has its own window.
	allowed, err = e.allow(ctx, "B", lim)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, allowed, true)
}

func TestFixedWindowConcurrent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e := &fixedWindowEngine{store: st}
	lim := config.Limits{Limit: 10, Window: 60}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.allow(ctx, "A", lim)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The scripted check-and-increment admits exactly the limit.
	testutil.AssertEqual(t, allowed, 10)
}
