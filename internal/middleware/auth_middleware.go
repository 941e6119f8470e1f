package middleware

import (
	"context"
	"net/http"
	"strings"

	"newsletter-relay/internal/services"
	"newsletter-relay/internal/transport/httpdto"
	"newsletter-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(service *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, err := service.ParseAccessToken(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", httpdto.CodeUnauthorized))
			c.Abort()
			return
		}

		ctx := services.WithActorContext(c.Request.Context(), actorID)
		ctx = context.WithValue(ctx, logger.ActorIdKey, actorID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
