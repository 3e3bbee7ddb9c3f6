package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore backs the Store interface with a real Redis instance. Atomicity
// for RunScript comes from server-side Lua execution.
type redisStore struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing Redis client.
func NewRedis(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

// DialRedis connects to Redis at the given URL (redis://host:port/db) and
// verifies the connection with a ping.
func DialRedis(ctx context.Context, url string) (Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &StoreError{Op: "parse url", Err: err}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &StoreError{Op: "ping", Err: err}
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("get", err)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.wrap("set", err)
	}
	return nil
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, s.wrap("setnx", err)
	}
	return ok, nil
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.wrap("incr", err)
	}
	return val, nil
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return s.wrap("expire", err)
	}
	return nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return s.wrap("del", err)
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	// SCAN instead of KEYS so reset does not block the server.
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return nil, s.wrap("scan", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *redisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return s.wrap("zadd", err)
	}
	return nil
}

func (s *redisStore) ZRemRangeByScore(ctx context.Context, key string, max float64) (int64, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, key, "-inf", formatScore(max)).Result()
	if err != nil {
		return 0, s.wrap("zremrangebyscore", err)
	}
	return removed, nil
}

func (s *redisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, s.wrap("zcard", err)
	}
	return n, nil
}

func (s *redisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	n, err := s.client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, s.wrap("zcount", err)
	}
	return n, nil
}

func (s *redisStore) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := s.client.RPush(ctx, key, args...).Result()
	if err != nil {
		return 0, s.wrap("rpush", err)
	}
	return n, nil
}

func (s *redisStore) LPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("lpop", err)
	}
	return val, true, nil
}

func (s *redisStore) LPopCount(ctx context.Context, key string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := s.client.LPopCount(ctx, key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("lpop", err)
	}
	return vals, nil
}

func (s *redisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, s.wrap("llen", err)
	}
	return n, nil
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, s.wrap("lrange", err)
	}
	return vals, nil
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return s.wrap("sadd", err)
	}
	return nil
}

func (s *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return s.wrap("srem", err)
	}
	return nil
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.wrap("smembers", err)
	}
	return members, nil
}

func (s *redisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, s.wrap("scard", err)
	}
	return n, nil
}

func (s *redisStore) RunScript(ctx context.Context, script *Script, keys []string, args ...any) (any, error) {
	res, err := script.lua.Run(ctx, s.client, keys, args...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.wrap("script", err)
	}
	return res, nil
}

func (s *redisStore) Backend() Backend {
	return Backend{Type: "redis", Fake: false}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) wrap(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
