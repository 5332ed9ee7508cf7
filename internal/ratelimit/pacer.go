package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pacer enforces a minimum wall-clock spacing between successive calls,
// process-wide. The shared "last call" timestamp lives in Redis so every
// caller serializes against the same point.
type Pacer struct {
	client   *redis.Client
	key      string
	interval time.Duration
	ttl      time.Duration
}

// NewPacer builds a pacer allowing ratePerMinute calls per minute, i.e. a
// minimum spacing of 60s/ratePerMinute between consecutive call starts.
func NewPacer(client *redis.Client, key string, ratePerMinute int, ttl time.Duration) *Pacer {
	if ratePerMinute <= 0 {
		ratePerMinute = 12
	}
	return &Pacer{
		client:   client,
		key:      key,
		interval: time.Minute / time.Duration(ratePerMinute),
		ttl:      ttl,
	}
}

// Interval returns the enforced minimum spacing.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Allow claims the next call slot if the spacing has elapsed. When not
// allowed it returns how long to wait before retrying.
func (p *Pacer) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := time.Now().UnixMilli()
	res, err := pacerScript.Run(ctx, p.client, []string{p.key},
		p.interval.Milliseconds(), now, p.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	waitMs, _ := arr[1].(int64)
	return allowed, time.Duration(waitMs) * time.Millisecond, nil
}

// Wait blocks until a call slot is claimed or the context is done.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := p.Allow(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var pacerScript = redis.NewScript(`
local key = KEYS[1]
local interval = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local last = tonumber(redis.call('GET', key))
if last == nil then last = now - interval end

local wait = last + interval - now
if wait <= 0 then
  redis.call('SET', key, now)
  if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
  return {1, 0}
end
return {0, wait}
`)
