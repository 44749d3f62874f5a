// Package ratelimit provides a Redis-backed sliding window rate limiter
// used to protect the on-demand API endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/craftlink/sentinel/pkg/config"
)

// IdentityType classifies the caller for rule selection.
type IdentityType int

const (
	IdentityAnonymous IdentityType = iota
	IdentityAuthenticated
)

// Rule is the effective limit applied to a single caller.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Result reports the outcome of an Allow check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// slidingWindowScript counts requests in the window and admits the caller when
// under limit+burst. ZREMRANGEBYSCORE trims expired entries so the sorted set
// stays bounded.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count < max then
	redis.call("ZADD", key, now, now .. "-" .. math.random(1000000))
	redis.call("PEXPIRE", key, window)
	return {1, max - count - 1}
end
return {0, 0}
`)

// Limiter applies per-caller sliding window limits backed by Redis.
type Limiter struct {
	client redis.Cmdable
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

// NewLimiter creates a limiter from configuration.
func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: slidingWindowScript,
		now:    time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (l *Limiter) WithNow(now func() time.Time) {
	l.now = now
}

// RuleFor returns the effective rule for an endpoint and identity class.
func (l *Limiter) RuleFor(endpoint string, identity IdentityType) Rule {
	rule := Rule{
		Limit:  l.cfg.DefaultLimit,
		Burst:  l.cfg.DefaultBurst,
		Window: l.cfg.Window(),
	}
	if identity == IdentityAnonymous {
		rule.Limit = l.cfg.AnonymousLimit
		rule.Burst = l.cfg.AnonymousBurst
	}
	if rule.Burst < 0 {
		rule.Burst = 0
	}
	return rule
}

// Allow checks and records one request for the caller key.
func (l *Limiter) Allow(ctx context.Context, callerKey string, rule Rule) (Result, error) {
	if !l.cfg.Enabled {
		return Result{Allowed: true, Remaining: rule.Limit}, nil
	}

	key := fmt.Sprintf("%s:%s", l.cfg.RedisPrefix, callerKey)
	nowMillis := l.now().UnixMilli()
	windowMillis := rule.Window.Milliseconds()
	max := rule.Limit + rule.Burst

	res, err := l.script.Run(ctx, l.client, []string{key}, nowMillis, windowMillis, max).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	allowed, _ := res[0].(int64)
	remaining, _ := res[1].(int64)
	result := Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
	}
	if !result.Allowed {
		result.RetryAfter = rule.Window
	}
	return result, nil
}
