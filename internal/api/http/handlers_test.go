package http

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/domain/session"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

type fakeSessions struct {
	dumps map[int32]session.Dump
}

func (f *fakeSessions) Users() []int32 { return []int32{100, 101} }

func (f *fakeSessions) ForegroundUserID() int32 { return 100 }

func (f *fakeSessions) DumpUser(userID int32) (session.Dump, error) {
	d, ok := f.dumps[userID]
	if !ok {
		return session.Dump{}, errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
	}
	return d, nil
}

type fakeImes struct{}

func (fakeImes) ListInputMethods(int32) []protocol.Property {
	return []protocol.Property{{Name: "com.example.kbd", Label: "Keyboard"}}
}

type fakeAbilities struct{}

func (fakeAbilities) Connections() []ability.Connection {
	return []ability.Connection{{Token: "t1", Want: "100:com.example.kbd/KbdAbility", Pid: 42}}
}

func newTestRouter(t *testing.T) nethttp.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	sessions := &fakeSessions{dumps: map[int32]session.Dump{
		100: {UserID: 100, LastSessionID: 7},
	}}
	h := NewHandlers(sessions, fakeImes{}, fakeAbilities{}, metrics, nil)
	return NewRouter(h, metrics, RouterConfig{Gatherer: reg})
}

func do(t *testing.T, r nethttp.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	w := do(t, newTestRouter(t), "/health")
	require.Equal(t, nethttp.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(100), body["foreground_user"])
	assert.Equal(t, float64(2), body["users"])
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestUsersAndDump(t *testing.T) {
	r := newTestRouter(t)

	body := decode(t, do(t, r, "/users"))
	assert.Equal(t, []any{float64(100), float64(101)}, body["users"])

	w := do(t, r, "/users/100/dump")
	require.Equal(t, nethttp.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(100), body["user_id"])
	assert.Equal(t, float64(7), body["last_session_id"])

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown user", "/users/300/dump", nethttp.StatusNotFound},
		{"bad id", "/users/abc/dump", nethttp.StatusBadRequest},
		{"negative id", "/users/-1/dump", nethttp.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(t, r, tt.path).Code)
		})
	}
}

func TestImesAndAbilities(t *testing.T) {
	r := newTestRouter(t)

	body := decode(t, do(t, r, "/users/100/imes"))
	imes := body["input_methods"].([]any)
	require.Len(t, imes, 1)
	assert.Equal(t, "com.example.kbd", imes[0].(map[string]any)["name"])

	body = decode(t, do(t, r, "/abilities"))
	conns := body["connections"].([]any)
	require.Len(t, conns, 1)
	assert.Equal(t, float64(42), conns[0].(map[string]any)["pid"])
}

func TestMetricsEndpoints(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, "/health")

	w := do(t, r, "/metrics")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "imf_http_requests_total"))

	w = do(t, r, "/metrics/json")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "uptime_seconds")
}
