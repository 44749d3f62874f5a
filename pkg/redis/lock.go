package redis

import (
	"context"
	"time"
)

// unlockScript releases a lock only when the caller still owns it.
var unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// AcquireLock takes a distributed lock with the given TTL. Returns false when
// another holder already owns the lock. Used by the scheduler to keep two
// instances from running the same scan concurrently.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock releases a lock if, and only if, the caller still owns it.
func (c *Client) ReleaseLock(ctx context.Context, key, owner string) error {
	return c.Eval(ctx, unlockScript, []string{key}, owner).Err()
}

// ExtendLock refreshes the TTL of a lock the caller owns. Returns false when
// ownership was lost (the lock expired or was taken over).
func (c *Client) ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	current, err := c.Get(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if current != owner {
		return false, nil
	}
	return true, c.Expire(ctx, key, ttl).Err()
}
