package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/imf/internal/shared/id"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newRouter(RateLimit(AdminRateLimitConfig(0)))
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, get(r, "").Code)
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS(AdminCORSConfig([]string{"http://dash.local"})))

	w := get(r, "http://dash.local")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://dash.local", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "http://evil.local")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTraceIssuesAndKeepsIDs(t *testing.T) {
	r := newRouter(Trace(nil))

	w := get(r, "")
	issued := w.Header().Get(TraceHeader)
	assert.True(t, id.IsValid(issued))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, issued)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, issued, w.Header().Get(TraceHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "not-a-ulid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-ulid", w.Header().Get(TraceHeader))
}
