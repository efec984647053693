package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Process request
		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures outbound IPC call duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		method:  method,
	}
}

// Stop stops the timer and records the call with the status of err
func (t *Timer) Stop(err error) {
	t.metrics.RecordIPCCall(t.method, StatusLabel(err), time.Since(t.start))
}
