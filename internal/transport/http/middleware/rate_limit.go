package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RetryAdvisor is implemented by limiters that can tell when a key frees up.
type RetryAdvisor interface {
	RetryAfter(ctx context.Context, key string) time.Duration
}

// RateLimitRule binds a limiter to the identifier it counts.
type RateLimitRule struct {
	Name       string
	Limiter    port.RateLimiter
	Identifier IdentifierFunc
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules in order. Limiter
// failures fail open.
func RateLimit(log *zap.Logger, rules ...RateLimitRule) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Limiter == nil || rule.Identifier == nil {
			continue
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			allowed, err := rule.Limiter.Allow(c.Request.Context(), identifier)
			if err != nil {
				log.Warn("rate limit check failed", zap.String("rule", rule.Name), zap.Error(err))
				continue
			}
			if allowed {
				continue
			}

			if advisor, ok := rule.Limiter.(RetryAdvisor); ok {
				retry := advisor.RetryAfter(c.Request.Context(), identifier)
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			}
			AbortWithFailure(c, domain.ErrRateLimitExceeded, "too many requests")
			return
		}

		c.Next()
	}
}
