package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

const requestIDHeader = "X-Request-Id"

// observe attaches a request-scoped logger and records access logs and metrics
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		ctx, logger := logging.WithAttrs(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		// unmatched routes share one label
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" {
			return
		}

		elapsed := time.Since(start)
		status := c.Writer.Status()
		s.metrics.ObserveHTTP(c.Request.Method, path, status, elapsed)

		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed)
	}
}
