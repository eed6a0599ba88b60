package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LookupBucket throttles live ERP lookups with a Redis-backed token bucket.
// Cache misses are the only path that reaches the remote directly, and the
// remote is slow; the bucket caps how fast misses may fall through.
type LookupBucket struct {
	client   *redis.Client
	key      string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewLookupBucket constructs a bucket for the given ERP endpoint key.
func NewLookupBucket(client *redis.Client, key string, capacity int, refillPerSecond float64) *LookupBucket {
	return &LookupBucket{
		client:   client,
		key:      "erp:lookups:" + key,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      time.Hour,
	}
}

// AllowLookup consumes one token if available.
func (b *LookupBucket) AllowLookup(ctx context.Context) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{b.key},
		b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 1 {
		return false, nil
	}
	allowed, _ := arr[0].(int64)
	return allowed == 1, nil
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
