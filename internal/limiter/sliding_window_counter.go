package limiter

import (
	"context"
	"math"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// slidingWindowCounterEngine approximates a sliding window from two fixed
// slice counters: estimate = (1-offset)*previous + current, assuming uniform
// arrival within the previous slice. Read-estimate-increment runs as one
// script. Missing slice counters read as zero.
type slidingWindowCounterEngine struct {
	store store.Store
	now   func() time.Time
}

const luaSlidingWindowCounter = `
-- KEYS[1]: current slice counter
-- KEYS[2]: previous slice counter
-- ARGV[1]: limit
-- ARGV[2]: previous-slice weight (1 - offset)
-- ARGV[3]: counter TTL (seconds)
local curr = tonumber(redis.call('GET', KEYS[1]) or '0')
local prev = tonumber(redis.call('GET', KEYS[2]) or '0')
local estimate = prev * tonumber(ARGV[2]) + curr
if estimate < tonumber(ARGV[1]) then
    redis.call('INCR', KEYS[1])
    redis.call('EXPIRE', KEYS[1], ARGV[3])
    return 1
end
return 0
`

var slidingWindowCounterScript = store.NewScript(luaSlidingWindowCounter, nativeSlidingWindowCounter)

// nativeSlidingWindowCounter is the in-process twin of
// luaSlidingWindowCounter.
func nativeSlidingWindowCounter(tx store.Tx, keys []string, args []any) (any, error) {
	limit := argFloat(args[0])
	weight := argFloat(args[1])
	ttl := argInt(args[2])

	var curr, prev float64
	if raw, ok := tx.Get(keys[0]); ok {
		curr = argFloat(raw)
	}
	if raw, ok := tx.Get(keys[1]); ok {
		prev = argFloat(raw)
	}

	if prev*weight+curr < limit {
		tx.Incr(keys[0])
		tx.Expire(keys[0], time.Duration(ttl)*time.Second)
		return int64(1), nil
	}
	return int64(0), nil
}

func (e *slidingWindowCounterEngine) allow(ctx context.Context, id string, lim config.Limits) (bool, error) {
	now := unixSeconds(e.now())
	window := float64(lim.Window)

	slice := int64(math.Floor(now / window))
	offset := math.Mod(now, window) / window

	res, err := e.store.RunScript(ctx, slidingWindowCounterScript,
		[]string{slidingCounterKey(id, slice), slidingCounterKey(id, slice-1)},
		lim.Limit, 1-offset, 2*lim.Window,
	)
	if err != nil {
		return false, err
	}
	return scriptAllowed(res), nil
}
