package middleware

import (
	"context"
	"time"

	"homehub/internal/core/domain"
	"homehub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestLoggingMiddleware tags every request with a request ID and logs
// it on completion with whatever identity the auth layer attached.
func RequestLoggingMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), logger.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		// The auth middleware sets user_id after this handler starts,
		// so it is folded in here rather than up front.
		if userID, ok := c.Get("user_id"); ok {
			if id, ok := userID.(domain.UserID); ok {
				ctx = context.WithValue(ctx, logger.ContextKeyUserID, string(id))
			}
		}
		cl.LogRequest(ctx, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
