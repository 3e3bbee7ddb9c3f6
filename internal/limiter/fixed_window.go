package limiter

import (
	"context"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// fixedWindowEngine counts admissions in fixed windows of the configured
// length. The counter increment and its TTL assignment run in one script so
// concurrent first requests cannot leave an unexpiring counter. Up to
// 2*limit admissions around a window boundary is a known property of the
// algorithm, not a defect.
type fixedWindowEngine struct {
	store store.Store
}

const luaFixedWindow = `
-- KEYS[1]: counter key
-- ARGV[1]: limit
-- ARGV[2]: window (seconds)
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
if count <= tonumber(ARGV[1]) then
    return 1
end
return 0
`

var fixedWindowScript = store.NewScript(luaFixedWindow, nativeFixedWindow)

// nativeFixedWindow is the in-process twin of luaFixedWindow.
func nativeFixedWindow(tx store.Tx, keys []string, args []any) (any, error) {
	limit := argInt(args[0])
	window := argInt(args[1])

	count := tx.Incr(keys[0])
	if count == 1 {
		tx.Expire(keys[0], time.Duration(window)*time.Second)
	}
	if count <= limit {
		return int64(1), nil
	}
	return int64(0), nil
}

func (e *fixedWindowEngine) allow(ctx context.Context, id string, lim config.Limits) (bool, error) {
	res, err := e.store.RunScript(ctx, fixedWindowScript,
		[]string{fixedWindowKey(id)},
		lim.Limit, lim.Window,
	)
	if err != nil {
		return false, err
	}
	return scriptAllowed(res), nil
}
