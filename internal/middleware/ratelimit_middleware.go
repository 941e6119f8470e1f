package middleware

import (
	"context"
	"net/http"
	"strconv"

	"newsletter-relay/internal/redis"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

const publishAcceptedKey = "publish.accepted"

// MarkPublishAccepted records that the request published a new issue. Only
// such requests keep the rate limit slot they took.
func MarkPublishAccepted(c *gin.Context) {
	c.Set(publishAcceptedKey, true)
}

// PublishRateLimitMiddleware limits new publishes per actor. It must run
// after AuthMiddleware. Replays, in-flight conflicts and rejected requests
// give their slot back. A Redis failure lets the request through.
func PublishRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := services.ActorIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		result, err := limiter.AllowPublish(c.Request.Context(), actorID.String())
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("publish rate limit exceeded", httpdto.CodeRateLimited))
			c.Abort()
			return
		}

		c.Next()

		if !c.GetBool(publishAcceptedKey) {
			if err := limiter.RefundPublish(context.WithoutCancel(c.Request.Context()), actorID.String()); err != nil {
				_ = c.Error(err)
			}
		}
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
