package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/platform/ctxutil"
)

// TraceMiddleware attaches a request id to the context so downstream
// logs and error responses can be correlated. An inbound X-Request-ID
// is honored when present.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		td := &ctxutil.TraceData{
			TraceID:   uuid.NewString(),
			RequestID: requestID,
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), td)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
