package limiter

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// slidingWindowLogEngine keeps one sorted-set member per admission, scored
// by timestamp. Prune, count, add and TTL refresh run as one script: two
// concurrent admissions can never both observe cardinality < limit and both
// add.
type slidingWindowLogEngine struct {
	store store.Store
	now   func() time.Time
}

const luaSlidingWindowLog = `
-- KEYS[1]: log key (sorted set)
-- ARGV[1]: now (fractional seconds)
-- ARGV[2]: window (seconds)
-- ARGV[3]: limit
-- ARGV[4]: member token
local now = tonumber(ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - tonumber(ARGV[2]))
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
    redis.call('ZADD', KEYS[1], now, ARGV[4])
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]) + 1)
    return 1
end
return 0
`

var slidingWindowLogScript = store.NewScript(luaSlidingWindowLog, nativeSlidingWindowLog)

// nativeSlidingWindowLog is the in-process twin of luaSlidingWindowLog.
func nativeSlidingWindowLog(tx store.Tx, keys []string, args []any) (any, error) {
	now := argFloat(args[0])
	window := argFloat(args[1])
	limit := argInt(args[2])
	member := argString(args[3])

	tx.ZRemRangeByScore(keys[0], now-window)
	if tx.ZCard(keys[0]) < limit {
		tx.ZAdd(keys[0], now, member)
		tx.Expire(keys[0], time.Duration(window+1)*time.Second)
		return int64(1), nil
	}
	return int64(0), nil
}

func (e *slidingWindowLogEngine) allow(ctx context.Context, id string, lim config.Limits) (bool, error) {
	now := unixSeconds(e.now())

	// The member must be unique even when two requests share a timestamp.
	member := strconv.FormatFloat(now, 'f', 6, 64) + ":" + uuid.NewString()

	res, err := e.store.RunScript(ctx, slidingWindowLogScript,
		[]string{slidingLogKey(id)},
		now, lim.Window, lim.Limit, member,
	)
	if err != nil {
		return false, err
	}
	return scriptAllowed(res), nil
}
