package limiter

import (
	"context"
	"strconv"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// leakyBucketEngine queues admitted requests per identity; the drainer
// removes them at limit/window per second. Admission is immediate when the
// queue has room; smoothing shows up as rejection of overflow, not latency.
// The length check and push run in one script so the queue never exceeds the
// limit.
type leakyBucketEngine struct {
	store store.Store
	now   func() time.Time
}

const luaLeakyBucket = `
-- KEYS[1]: queue key (list)
-- KEYS[2]: active bucket set
-- ARGV[1]: limit (queue capacity)
-- ARGV[2]: enqueued timestamp
-- ARGV[3]: identity
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[1]) then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`

var leakyBucketScript = store.NewScript(luaLeakyBucket, nativeLeakyBucket)

// nativeLeakyBucket is the in-process twin of luaLeakyBucket.
func nativeLeakyBucket(tx store.Tx, keys []string, args []any) (any, error) {
	limit := argInt(args[0])
	ts := argString(args[1])
	id := argString(args[2])

	if tx.LLen(keys[0]) >= limit {
		return int64(0), nil
	}
	tx.RPush(keys[0], ts)
	tx.SAdd(keys[1], id)
	return int64(1), nil
}

func (e *leakyBucketEngine) allow(ctx context.Context, id string, lim config.Limits) (bool, error) {
	ts := strconv.FormatFloat(unixSeconds(e.now()), 'f', 6, 64)

	res, err := e.store.RunScript(ctx, leakyBucketScript,
		[]string{leakyBucketKey(id), ActiveLeakyBucketsKey},
		lim.Limit, ts, id,
	)
	if err != nil {
		return false, err
	}
	return scriptAllowed(res), nil
}
