package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/shared/id"
)

// TraceHeader carries the request trace id, a bare ULID, in and out
const TraceHeader = "X-Trace-ID"

// Trace tags each request with a trace id, reusing a valid incoming one,
// and writes an access log line when it completes.
func Trace(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("access")

	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if !id.IsValid(traceID) {
			traceID = id.Default().GenerateString()
		}
		c.Set("trace_id", traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("trace_id", traceID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			logger.Warn("request failed", append(fields, zap.String("error", c.Errors.Last().Error()))...)
			return
		}
		logger.Debug("request", fields...)
	}
}
