package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/services"
)

// RateLimit enforces the per-user, per-endpoint budget. It must run
// after Auth so the user identity is available.
func RateLimit(rateLimitService *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			logger.Error("Rate limit middleware called without user context")
			c.Next()
			return
		}

		allowed, info, err := rateLimitService.IsAllowed(user.UserID, c.FullPath())
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			// Fail open so a Redis outage never blocks traffic
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"user_id":  user.UserID,
				"endpoint": c.FullPath(),
				"limit":    info.Limit,
			}).Warn("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
