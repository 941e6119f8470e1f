package middleware

import (
	"net/http"

	"newsletter-relay/internal/transport/httpdto"
	"newsletter-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders errors attached with c.Error when the handler did
// not write a response itself.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	if l == nil {
		l = logger.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		l.WithContext(c.Request.Context()).Error("request error", zap.Error(err))
		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), httpdto.CodeInternal))
	}
}
