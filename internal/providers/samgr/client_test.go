package samgr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// fakeManager loads an ability after loadAfter status checks; a negative
// loadAfter never finishes.
type fakeManager struct {
	mu        sync.Mutex
	state     State
	checks    int
	loadAfter int
	loads     int
	unloads   int
	failNext  int
}

func (f *fakeManager) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/system-abilities/3703", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failNext > 0 {
			f.failNext--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if f.state == StateLoading {
			f.checks++
			if f.loadAfter >= 0 && f.checks >= f.loadAfter {
				f.state = StateLoaded
			}
		}
		if f.state == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Status{SAID: 3703, State: f.state, Address: "unix:///run/imsa.sock"})
	})
	mux.HandleFunc("POST /v1/system-abilities/3703/load", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loads++
		f.state = StateLoading
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /v1/system-abilities/3703/unload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.unloads++
		f.state = StateUnloaded
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newClient(t *testing.T, f *fakeManager, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Address:      srv.URL,
		LoadTimeout:  timeout,
		RetryCount:   2,
		PollInterval: 10 * time.Millisecond,
	}, nil)
}

func TestLoadSystemAbility(t *testing.T) {
	f := &fakeManager{loadAfter: 3}
	c := newClient(t, f, 2*time.Second)

	st, err := c.LoadSystemAbility(t.Context(), InputMethodSystemAbilityID)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, st.State)
	assert.Equal(t, "unix:///run/imsa.sock", st.Address)
	assert.Equal(t, 1, f.loads)

	_, err = c.LoadSystemAbility(t.Context(), InputMethodSystemAbilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.loads, "an already loaded ability is not loaded again")
}

func TestLoadSystemAbilityTimesOut(t *testing.T) {
	f := &fakeManager{loadAfter: -1}
	c := newClient(t, f, 150*time.Millisecond)

	begin := time.Now()
	_, err := c.LoadSystemAbility(t.Context(), InputMethodSystemAbilityID)
	assert.True(t, errs.Is(err, errs.ErrorOperateSystemService))
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestCheckRetriesServerErrors(t *testing.T) {
	f := &fakeManager{state: StateLoaded, failNext: 2}
	c := newClient(t, f, time.Second)

	st, err := c.CheckSystemAbility(t.Context(), InputMethodSystemAbilityID)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, st.State)
}

func TestCheckUnknownAbility(t *testing.T) {
	c := newClient(t, &fakeManager{}, time.Second)
	st, err := c.CheckSystemAbility(t.Context(), InputMethodSystemAbilityID)
	require.NoError(t, err)
	assert.Equal(t, StateUnloaded, st.State)
}

func TestUnloadSystemAbility(t *testing.T) {
	f := &fakeManager{state: StateLoaded}
	c := newClient(t, f, time.Second)
	require.NoError(t, c.UnloadSystemAbility(t.Context(), InputMethodSystemAbilityID))
	assert.Equal(t, 1, f.unloads)
}

func TestUnreachableManager(t *testing.T) {
	c := NewClient(Config{Address: "http://127.0.0.1:1", LoadTimeout: 200 * time.Millisecond}, nil)
	_, err := c.LoadSystemAbility(t.Context(), InputMethodSystemAbilityID)
	assert.True(t, errs.Is(err, errs.ErrorOperateSystemService))
}
