package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCheckerNilPool(t *testing.T) {
	err := PoolChecker(nil)()
	assert.Error(t, err)
}

func TestRedisCheckerNilClient(t *testing.T) {
	err := RedisChecker(nil)()
	assert.Error(t, err)
}

func TestNATSCheckerNilConn(t *testing.T) {
	err := NATSChecker(nil)()
	assert.Error(t, err)
}

func TestHTTPEndpointChecker(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	assert.NoError(t, HTTPEndpointChecker(healthy.URL+"/health")())

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	err := HTTPEndpointChecker(failing.URL + "/health")()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPEndpointCheckerUnreachable(t *testing.T) {
	err := HTTPEndpointCheckerWithConfig("http://127.0.0.1:1/health", CheckerConfig{Timeout: 100 * time.Millisecond})()
	assert.Error(t, err)
}

func TestHTTPEndpointCheckerDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	// 302 is below 400, so the redirect response itself counts as healthy.
	assert.NoError(t, HTTPEndpointChecker(server.URL)())
}

func TestCompositeCheckerAggregatesFailures(t *testing.T) {
	check := CompositeChecker("detection", map[string]Checker{
		"postgres": func() error { return nil },
		"redis":    func() error { return errors.New("connection refused") },
		"nats":     func() error { return errors.New("not connected") },
	})

	err := check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection.redis")
	assert.Contains(t, err.Error(), "detection.nats")
	assert.NotContains(t, err.Error(), "detection.postgres")
}

func TestCompositeCheckerAllHealthy(t *testing.T) {
	check := CompositeChecker("detection", map[string]Checker{
		"postgres": func() error { return nil },
	})
	assert.NoError(t, check())
}

func TestAsyncCheckerCompletesInTime(t *testing.T) {
	check := AsyncChecker(func() error { return nil }, time.Second)
	assert.NoError(t, check())
}

func TestAsyncCheckerTimesOut(t *testing.T) {
	blocked := make(chan struct{})
	defer close(blocked)

	check := AsyncChecker(func() error {
		<-blocked
		return nil
	}, 20*time.Millisecond)

	err := check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestCachedCheckerServesFreshResult(t *testing.T) {
	runs := 0
	cached := NewCachedChecker(func() error {
		runs++
		return nil
	}, time.Minute)

	for i := 0; i < 3; i++ {
		assert.NoError(t, cached.Check())
	}
	assert.Equal(t, 1, runs)
}

func TestCachedCheckerCachesErrors(t *testing.T) {
	runs := 0
	cached := NewCachedChecker(func() error {
		runs++
		return errors.New("postgres down")
	}, time.Minute)

	assert.Error(t, cached.Check())
	assert.Error(t, cached.Check())
	assert.Equal(t, 1, runs)
}

func TestCachedCheckerReRunsAfterTTL(t *testing.T) {
	runs := 0
	cached := NewCachedChecker(func() error {
		runs++
		return nil
	}, time.Millisecond)

	require.NoError(t, cached.Check())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cached.Check())
	assert.Equal(t, 2, runs)
}
