package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/craftlink/sentinel/pkg/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		RedisPrefix:    "ratelimit",
		DefaultLimit:   100,
		DefaultBurst:   20,
		AnonymousLimit: 20,
		AnonymousBurst: 5,
		WindowSeconds:  60,
	}
}

func TestRuleFor_Authenticated(t *testing.T) {
	limiter := NewLimiter(nil, testConfig())

	rule := limiter.RuleFor("/api/v1/trust/:user_id", IdentityAuthenticated)

	assert.Equal(t, 100, rule.Limit)
	assert.Equal(t, 20, rule.Burst)
	assert.Equal(t, 60*time.Second, rule.Window)
}

func TestRuleFor_Anonymous(t *testing.T) {
	limiter := NewLimiter(nil, testConfig())

	rule := limiter.RuleFor("/health", IdentityAnonymous)

	assert.Equal(t, 20, rule.Limit)
	assert.Equal(t, 5, rule.Burst)
}

func TestRuleFor_NegativeBurstClamped(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultBurst = -10
	limiter := NewLimiter(nil, cfg)

	rule := limiter.RuleFor("/api/v1/cases", IdentityAuthenticated)

	assert.Equal(t, 0, rule.Burst)
}

func TestAllow_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	limiter := NewLimiter(nil, cfg)

	result, err := limiter.Allow(context.Background(), "user:abc", Rule{Limit: 10, Window: time.Minute})

	assert.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 10, result.Remaining)
}
