package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/logger"
	"github.com/craftlink/sentinel/pkg/ratelimit"
)

// RateLimit enforces per-caller request limits. Authenticated callers
// are keyed by user ID, anonymous callers by client IP. Redis outages
// fail open so the API stays available.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := ratelimit.IdentityAnonymous
		callerKey := "ip:" + c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" {
			identity = ratelimit.IdentityAuthenticated
			callerKey = "user:" + userID
		}

		rule := limiter.RuleFor(c.FullPath(), identity)
		result, err := limiter.Allow(c.Request.Context(), callerKey, rule)
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("rate limit check failed, allowing request",
				zap.String("caller", callerKey),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
