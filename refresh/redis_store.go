package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSweepBatch = 500

const (
	createStatusCollision int64 = 0
	createStatusCreated   int64 = 1
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusConsumed int64 = 1
)

// KEYS[1] record, KEYS[2] expiry index; ARGV[1] value, ARGV[2] expiry ms, ARGV[3] hash.
const createScript = `
if not redis.call("SET", KEYS[1], ARGV[1], "NX") then
  return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`

var createLua = redis.NewScript(createScript)

// KEYS[1] record, KEYS[2] expiry index; ARGV[1] hash.
const consumeScript = `
local data = redis.call("GET", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if not data then
  return {0}
end
redis.call("DEL", KEYS[1])
return {1, data}
`

var consumeLua = redis.NewScript(consumeScript)

// KEYS[1] expiry index, KEYS[2..n] records; ARGV[i] is the hash of KEYS[i+1].
// A record is deleted only if this call removed its index entry.
const sweepScript = `
local removed = 0
for i, hash in ipairs(ARGV) do
  if redis.call("ZREM", KEYS[1], hash) == 1 then
    removed = removed + redis.call("DEL", KEYS[i + 1])
  end
end
return removed
`

var sweepLua = redis.NewScript(sweepScript)

// StoreConfig tunes a ledger store.
type StoreConfig struct {
	// TTL is the lifetime given to new tokens. Zero means DefaultTTL.
	TTL time.Duration
	// SweepBatchSize bounds how many records one sweep round removes.
	SweepBatchSize int
	// Now overrides the wall clock.
	Now func() time.Time
}

func (c StoreConfig) normalized() StoreConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaultSweepBatch
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// RedisStore is a Redis-backed [Ledger].
//
// Each token lives under "{<prefix>}:rt:<sha256>" holding "<subject>:<expiresUnixMilli>",
// and a sorted set "{<prefix>}:rt:exp" indexes hashes by expiry for sweeping. The
// braces are a cluster hash tag: every key of one store maps to the same slot, so
// the multi-key scripts below run unchanged against Redis Cluster. Records carry
// no Redis TTL; reclamation is the sweeper's job.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	config StoreConfig
}

// NewRedisStore creates a [RedisStore] backed by the given Redis client.
func NewRedisStore(rdb redis.UniversalClient, prefix string, cfg StoreConfig) *RedisStore {
	if prefix == "" {
		prefix = "ag"
	}
	return &RedisStore{
		redis:  rdb,
		prefix: prefix,
		config: cfg.normalized(),
	}
}

func (s *RedisStore) tag() string {
	return "{" + s.prefix + "}"
}

func (s *RedisStore) key(hash string) string {
	return s.tag() + ":rt:" + hash
}

func (s *RedisStore) indexKey() string {
	return s.tag() + ":rt:exp"
}

// Create stores a new token for subjectID.
//
//	Performance: 1 Lua EVALSHA (SET NX + ZADD), single slot.
func (s *RedisStore) Create(ctx context.Context, subjectID int64) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	hash := HashToken(token)
	expiresAt := s.config.Now().Add(s.config.TTL).UnixMilli()
	value := strconv.FormatInt(subjectID, 10) + ":" + strconv.FormatInt(expiresAt, 10)

	code, err := createLua.Run(ctx, s.redis, []string{s.key(hash), s.indexKey()}, value, expiresAt, hash).Int64()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch code {
	case createStatusCreated:
		return token, nil
	case createStatusCollision:
		return "", ErrCollision
	default:
		return "", fmt.Errorf("%w: unknown create script status", ErrRedisUnavailable)
	}
}

// Consume atomically reads and deletes the record for token.
//
//	Performance: 1 Lua EVALSHA (GET + DEL + ZREM).
func (s *RedisStore) Consume(ctx context.Context, token string) (Record, error) {
	if token == "" {
		return Record{}, ErrNotFound
	}
	hash := HashToken(token)

	result, err := consumeLua.Run(ctx, s.redis, []string{s.key(hash), s.indexKey()}, hash).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return Record{}, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return Record{}, fmt.Errorf("%w: invalid consume script status", ErrRedisUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return Record{}, ErrNotFound
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return Record{}, fmt.Errorf("%w: missing record payload", ErrRedisUnavailable)
		}
		raw, ok := parts[1].(string)
		if !ok {
			return Record{}, fmt.Errorf("%w: invalid record payload", ErrRedisUnavailable)
		}
		return decodeRecord(raw)
	default:
		return Record{}, fmt.Errorf("%w: unknown consume script status", ErrRedisUnavailable)
	}
}

// Delete removes token. Deleting a missing token succeeds.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(hash))
		pipe.ZRem(ctx, s.indexKey(), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SweepExpired removes records whose expiry is before now, in batches of
// SweepBatchSize. Each batch is read from the expiry index and then claimed by
// one script; records consumed in between are skipped and not counted.
func (s *RedisStore) SweepExpired(ctx context.Context) (int64, error) {
	bound := "(" + strconv.FormatInt(s.config.Now().UnixMilli(), 10)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		hashes, err := s.redis.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   bound,
			Count: int64(s.config.SweepBatchSize),
		}).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(hashes) == 0 {
			return total, nil
		}

		keys := make([]string, 0, len(hashes)+1)
		args := make([]interface{}, 0, len(hashes))
		keys = append(keys, s.indexKey())
		for _, hash := range hashes {
			keys = append(keys, s.key(hash))
			args = append(args, hash)
		}

		removed, err := sweepLua.Run(ctx, s.redis, keys, args...).Int64()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += removed

		if len(hashes) < s.config.SweepBatchSize {
			return total, nil
		}
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeRecord(raw string) (Record, error) {
	subject, expires, ok := strings.Cut(raw, ":")
	if !ok {
		return Record{}, errors.New("refresh record corrupt")
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("refresh record corrupt: %w", err)
	}
	ms, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("refresh record corrupt: %w", err)
	}
	return Record{SubjectID: id, ExpiresAt: time.UnixMilli(ms)}, nil
}
