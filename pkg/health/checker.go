// Package health provides composable dependency checks for readiness
// and liveness endpoints.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Checker is a single dependency probe.
type Checker func() error

// CheckerConfig tunes probe behavior.
type CheckerConfig struct {
	Timeout time.Duration
}

// DefaultCheckerConfig returns the standard 2s probe timeout.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{Timeout: 2 * time.Second}
}

// PoolChecker probes a pgx connection pool.
func PoolChecker(pool *pgxpool.Pool) Checker {
	return PoolCheckerWithConfig(pool, DefaultCheckerConfig())
}

// PoolCheckerWithConfig probes a pgx connection pool with a custom
// timeout.
func PoolCheckerWithConfig(pool *pgxpool.Pool, config CheckerConfig) Checker {
	return func() error {
		if pool == nil {
			return errors.New("database connection is nil")
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}

// RedisChecker probes a Redis connection.
func RedisChecker(client *redis.Client) Checker {
	return RedisCheckerWithConfig(client, DefaultCheckerConfig())
}

// RedisCheckerWithConfig probes a Redis connection with a custom
// timeout.
func RedisCheckerWithConfig(client *redis.Client, config CheckerConfig) Checker {
	return func() error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// NATSChecker probes a NATS connection.
func NATSChecker(conn *nats.Conn) Checker {
	return func() error {
		if conn == nil {
			return errors.New("nats connection is nil")
		}
		if !conn.IsConnected() {
			return fmt.Errorf("nats connection status: %s", conn.Status())
		}
		return nil
	}
}

// HTTPEndpointChecker probes an HTTP endpoint. Any status below 400 is
// treated as healthy.
func HTTPEndpointChecker(url string) Checker {
	return HTTPEndpointCheckerWithConfig(url, DefaultCheckerConfig())
}

// HTTPEndpointCheckerWithConfig probes an HTTP endpoint with a custom
// timeout.
func HTTPEndpointCheckerWithConfig(url string, config CheckerConfig) Checker {
	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return func() error {
		resp, err := client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
		}
		return nil
	}
}

// CompositeChecker aggregates named checks under a common prefix.
func CompositeChecker(name string, checkers map[string]Checker) Checker {
	return func() error {
		var failures []string
		for checkName, check := range checkers {
			if err := check(); err != nil {
				failures = append(failures, fmt.Sprintf("%s.%s: %v", name, checkName, err))
			}
		}
		if len(failures) > 0 {
			sort.Strings(failures)
			return errors.New(strings.Join(failures, "; "))
		}
		return nil
	}
}

// AsyncChecker runs a check in a goroutine and fails with a timeout
// error when it does not complete in time.
func AsyncChecker(checker Checker, timeout time.Duration) Checker {
	return func() error {
		done := make(chan error, 1)
		go func() {
			done <- checker()
		}()

		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return fmt.Errorf("health check timeout after %v", timeout)
		}
	}
}

// CachedChecker caches a check result for a TTL so hot health endpoints
// do not hammer dependencies.
type CachedChecker struct {
	checker  Checker
	cacheTTL time.Duration

	mu        sync.Mutex
	lastRun   time.Time
	lastError error
}

// NewCachedChecker wraps a checker with a result cache.
func NewCachedChecker(checker Checker, cacheTTL time.Duration) *CachedChecker {
	return &CachedChecker{
		checker:  checker,
		cacheTTL: cacheTTL,
	}
}

// Check returns the cached result when fresh, running the underlying
// checker otherwise. Errors are cached the same as successes.
func (c *CachedChecker) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRun.IsZero() && time.Since(c.lastRun) < c.cacheTTL {
		return c.lastError
	}

	c.lastError = c.checker()
	c.lastRun = time.Now()
	return c.lastError
}
