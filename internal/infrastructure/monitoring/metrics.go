package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics (admin API)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Message pump metrics
	MessagesPushed    *prometheus.CounterVec
	MessagesProcessed *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	MessageDuration   *prometheus.HistogramVec

	// IME lifecycle metrics
	ImeStarts   *prometheus.CounterVec
	ImeDeaths   *prometheus.CounterVec
	ImeRestarts *prometheus.CounterVec

	// Client metrics
	ClientDeaths prometheus.Counter
	BoundClients *prometheus.GaugeVec

	// Outbound IPC metrics
	IPCCalls    *prometheus.CounterVec
	IPCDuration *prometheus.HistogramVec
	IPCSkipped  *prometheus.CounterVec

	// Session metrics
	UsersActive prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	MessagesProcessed int64   `json:"messages_processed"`
	MessagesDropped   int64   `json:"messages_dropped"`
	ImeRestarts       int64   `json:"ime_restarts"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered on reg. Tests pass a
// fresh prometheus.NewRegistry(); the server passes
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imf_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		MessagesPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_messages_pushed_total",
				Help: "Messages pushed onto the service queue",
			},
			[]string{"id"},
		),
		MessagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_messages_processed_total",
				Help: "Messages handled by the consumer",
			},
			[]string{"id"},
		),
		MessagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_messages_dropped_total",
				Help: "Messages dropped before reaching a handler",
			},
			[]string{"id", "reason"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "imf_queue_depth",
				Help: "Messages waiting for the consumer",
			},
		),
		MessageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imf_message_duration_seconds",
				Help:    "Time the consumer spent on one message",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"id"},
		),

		ImeStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_ime_starts_total",
				Help: "IME start attempts by result",
			},
			[]string{"result"},
		),
		ImeDeaths: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_ime_deaths_total",
				Help: "IME process deaths by role",
			},
			[]string{"role"},
		),
		ImeRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_ime_restarts_total",
				Help: "Automatic IME restarts by outcome",
			},
			[]string{"outcome"},
		),

		ClientDeaths: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "imf_client_deaths_total",
				Help: "Client process deaths",
			},
		),
		BoundClients: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imf_bound_clients",
				Help: "Registered clients per user",
			},
			[]string{"user"},
		),

		IPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_ipc_calls_total",
				Help: "Outbound IPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		IPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imf_ipc_duration_seconds",
				Help:    "Outbound IPC call duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method"},
		),
		IPCSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imf_ipc_skipped_total",
				Help: "Outbound IPC calls skipped because the IME was frozen",
			},
			[]string{"method"},
		),

		UsersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "imf_users_active",
				Help: "Users with a live session",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "imf_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// NewNop returns metrics registered on a private registry, for tests and
// tools that do not expose /metrics.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordPush records a message accepted by the queue
func (m *Metrics) RecordPush(id string, depth int) {
	m.MessagesPushed.WithLabelValues(id).Inc()
	m.QueueDepth.Set(float64(depth))
}

// RecordDrop records a message that never reached a handler
func (m *Metrics) RecordDrop(id, reason string) {
	m.MessagesDropped.WithLabelValues(id, reason).Inc()
	m.mu.Lock()
	m.snapshot.MessagesDropped++
	m.mu.Unlock()
}

// RecordProcessed records a message the consumer finished
func (m *Metrics) RecordProcessed(id string, depth int, duration time.Duration) {
	m.MessagesProcessed.WithLabelValues(id).Inc()
	m.MessageDuration.WithLabelValues(id).Observe(duration.Seconds())
	m.QueueDepth.Set(float64(depth))
	m.mu.Lock()
	m.snapshot.MessagesProcessed++
	m.mu.Unlock()
}

// RecordImeStart records the outcome of an IME start attempt
func (m *Metrics) RecordImeStart(result string) {
	m.ImeStarts.WithLabelValues(result).Inc()
}

// RecordImeDeath records an IME process death
func (m *Metrics) RecordImeDeath(role string) {
	m.ImeDeaths.WithLabelValues(role).Inc()
}

// RecordImeRestart records an automatic restart decision
func (m *Metrics) RecordImeRestart(outcome string) {
	m.ImeRestarts.WithLabelValues(outcome).Inc()
	if outcome == "scheduled" {
		m.mu.Lock()
		m.snapshot.ImeRestarts++
		m.mu.Unlock()
	}
}

// IncClientDeaths increments the client death counter
func (m *Metrics) IncClientDeaths() {
	m.ClientDeaths.Inc()
}

// SetBoundClients sets the number of clients registered for a user
func (m *Metrics) SetBoundClients(user string, count int) {
	m.BoundClients.WithLabelValues(user).Set(float64(count))
}

// RecordIPCCall records an outbound IPC call
func (m *Metrics) RecordIPCCall(method, status string, duration time.Duration) {
	m.IPCCalls.WithLabelValues(method, status).Inc()
	m.IPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordIPCSkipped records an outbound call skipped for a frozen IME
func (m *Metrics) RecordIPCSkipped(method string) {
	m.IPCSkipped.WithLabelValues(method).Inc()
}

// SetUsersActive sets the number of live user sessions
func (m *Metrics) SetUsersActive(count int) {
	m.UsersActive.Set(float64(count))
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
