package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pacer spaces notification batches out so downstream mail infrastructure
// is never slammed by a full run at once.
type Pacer interface {
	Pause(ctx context.Context) error
}

// BatchPacer pauses a fixed interval between batches.
type BatchPacer struct {
	delay time.Duration
}

func NewBatchPacer(delay time.Duration) *BatchPacer {
	if delay <= 0 {
		delay = 2 * time.Minute
	}
	return &BatchPacer{delay: delay}
}

func (p *BatchPacer) Pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
		return nil
	}
}

// tokenBucketScript refills a per-key bucket at rate/minute and takes one
// token per call. State lives in Redis so concurrently running watchdog
// instances share one budget.
const tokenBucketScript = `
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])

	local bucket = redis.call('get', key)
	if not bucket then
		bucket = '{"tokens":' .. rate .. ',"last":' .. now .. '}'
	end

	local data = cjson.decode(bucket)
	local elapsed = now - data.last
	local tokens = math.min(rate, data.tokens + elapsed * (rate / 60))

	if tokens >= 1 then
		tokens = tokens - 1
		redis.call('setex', key, 120, cjson.encode({tokens=tokens, last=now}))
		return 1
	else
		return 0
	end
`

// TokenBucketPacer throttles batches through a shared Redis token bucket.
type TokenBucketPacer struct {
	client        *redis.Client
	key           string
	ratePerMinute int
	script        *redis.Script
}

func NewTokenBucketPacer(client *redis.Client, key string, ratePerMinute int) *TokenBucketPacer {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &TokenBucketPacer{
		client:        client,
		key:           key,
		ratePerMinute: ratePerMinute,
		script:        redis.NewScript(tokenBucketScript),
	}
}

// Pause blocks until a token is available or the context expires.
func (p *TokenBucketPacer) Pause(ctx context.Context) error {
	for {
		got, err := p.script.Run(ctx, p.client, []string{p.key}, p.ratePerMinute, time.Now().Unix()).Int()
		if err != nil {
			return fmt.Errorf("token bucket check: %w", err)
		}
		if got == 1 {
			return nil
		}
		wait := time.Duration(60000/p.ratePerMinute) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
