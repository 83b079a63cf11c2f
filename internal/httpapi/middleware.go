package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/sysviz/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// requestID propagates or mints a request id and stores it on both the gin
// context and the request context, where the logging helpers find it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(requestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// observe records request metrics by route template and logs every request
// at debug level.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), elapsed)
		}
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", elapsed),
			logging.String("request_id", c.GetString(requestIDKey)),
		}
		if c.Writer.Status() >= 500 {
			if last := c.Errors.Last(); last != nil {
				fields = append(fields, logging.Err(last.Err))
			}
			s.log.Warn(c.Request.Context(), "http request failed", fields...)
			return
		}
		s.log.Debug(c.Request.Context(), "http request", fields...)
	}
}
