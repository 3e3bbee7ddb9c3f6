package limiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
)

// tokenBucketEngine refills limit/window tokens per second up to a capacity
// of limit. The read-refill-consume-write cycle runs as one script with the
// caller's clock passed in, so concurrent requests and clock drift between
// instances cannot corrupt the stored record.
type tokenBucketEngine struct {
	store store.Store
	now   func() time.Time
}

// bucketRecord is the serialized bucket state.
type bucketRecord struct {
	Tokens     float64 `json:"tokens"`
	LastRefill float64 `json:"last_refill"`
}

const luaTokenBucket = `
-- KEYS[1]: bucket record key
-- ARGV[1]: now (fractional seconds)
-- ARGV[2]: capacity (limit)
-- ARGV[3]: refill rate (tokens per second)
-- ARGV[4]: record TTL (seconds)
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local tokens = capacity
local last = now
local raw = redis.call('GET', KEYS[1])
if raw then
    local ok, data = pcall(cjson.decode, raw)
    if ok and type(data) == 'table' then
        tokens = tonumber(data['tokens']) or capacity
        last = tonumber(data['last_refill']) or now
    end
end
local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * tonumber(ARGV[3]))
local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end
redis.call('SET', KEYS[1], cjson.encode({tokens = tokens, last_refill = now}), 'EX', ARGV[4])
return allowed
`

var tokenBucketScript = store.NewScript(luaTokenBucket, nativeTokenBucket)

// nativeTokenBucket is the in-process twin of luaTokenBucket.
func nativeTokenBucket(tx store.Tx, keys []string, args []any) (any, error) {
	now := argFloat(args[0])
	capacity := argFloat(args[1])
	rate := argFloat(args[2])
	ttl := argInt(args[3])

	rec := bucketRecord{Tokens: capacity, LastRefill: now}
	if raw, ok := tx.Get(keys[0]); ok {
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			rec = bucketRecord{Tokens: capacity, LastRefill: now}
		}
	}

	elapsed := now - rec.LastRefill
	if elapsed < 0 {
		elapsed = 0
	}
	rec.Tokens += elapsed * rate
	if rec.Tokens > capacity {
		rec.Tokens = capacity
	}
	rec.LastRefill = now

	allowed := int64(0)
	if rec.Tokens >= 1 {
		rec.Tokens--
		allowed = 1
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	tx.Set(keys[0], string(raw), time.Duration(ttl)*time.Second)
	return allowed, nil
}

func (e *tokenBucketEngine) allow(ctx context.Context, id string, lim config.Limits) (bool, error) {
	rate := float64(lim.Limit) / float64(lim.Window)

	res, err := e.store.RunScript(ctx, tokenBucketScript,
		[]string{tokenBucketKey(id)},
		unixSeconds(e.now()), lim.Limit, rate, lim.Window,
	)
	if err != nil {
		return false, err
	}
	return scriptAllowed(res), nil
}
