package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/models"
	"github.com/campuscare/campuscare-api/internal/service"
	"github.com/campuscare/campuscare-api/pkg/config"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
	"github.com/campuscare/campuscare-api/pkg/response"
)

// IssueRateLimit bounds how many issues one reporter can create per
// rolling window using a Redis counter. The first request of a
// window sets the TTL; Redis being down fails open so reporting
// never depends on the cache.
func IssueRateLimit(client *redis.Client, cfg config.RateLimitConfig, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if client == nil || !cfg.Enabled {
			c.Next()
			return
		}

		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		key := fmt.Sprintf("%s:%s", cfg.CounterKeyBase, claims.UserID)
		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(c.Request.Context(), key, cfg.CounterTTL).Err(); err != nil {
				logger.Warn("rate limit expire failed", zap.Error(err))
			}
		}

		if count > int64(cfg.IssuesPerDay) {
			if metrics != nil {
				metrics.RecordRateLimited()
			}
			ttl, _ := client.TTL(c.Request.Context(), key).Result()
			if ttl > 0 {
				c.Header("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			}
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "issue reporting limit reached, try again later"))
			c.Abort()
			return
		}

		c.Next()
	}
}
