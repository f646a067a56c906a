// Package metrics counts bridge activity with atomic counters and exposes
// them to Prometheus.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds bridge counters. The zero value is ready to use.
type Metrics struct {
	// Page traffic
	requestsTotal     atomic.Int64
	responsesSuccess  atomic.Int64
	responsesFailure  atomic.Int64
	diagnosticsTotal  atomic.Int64
	activeSessions    atomic.Int64
	sessionsTotal     atomic.Int64
	interactionsOpen  atomic.Int64
	interactionsTotal atomic.Int64

	// Upstream RPC
	proxyCallsTotal   atomic.Int64
	proxyErrorsTotal  atomic.Int64
	proxyLatencyNanos atomic.Int64

	// Storage
	storageWrites atomic.Int64
	storageErrors atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordRequest counts an inbound provider call.
func (m *Metrics) RecordRequest() {
	m.requestsTotal.Add(1)
}

// RecordResponse counts an rpc_response sent to a page.
func (m *Metrics) RecordResponse(success bool) {
	if success {
		m.responsesSuccess.Add(1)
		return
	}
	m.responsesFailure.Add(1)
}

// RecordDiagnostic counts a captured defect.
func (m *Metrics) RecordDiagnostic() {
	m.diagnosticsTotal.Add(1)
}

// SessionOpened counts a page connection.
func (m *Metrics) SessionOpened() {
	m.activeSessions.Add(1)
	m.sessionsTotal.Add(1)
}

// SessionClosed records a page connection ending.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Add(-1)
}

// InteractionOpened counts an overlay shown to the user.
func (m *Metrics) InteractionOpened() {
	m.interactionsOpen.Add(1)
	m.interactionsTotal.Add(1)
}

// InteractionResolved records an overlay closing.
func (m *Metrics) InteractionResolved() {
	m.interactionsOpen.Add(-1)
}

// RecordProxyCall records a forwarded call with its duration and outcome.
func (m *Metrics) RecordProxyCall(duration time.Duration, err error) {
	m.proxyCallsTotal.Add(1)
	m.proxyLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.proxyErrorsTotal.Add(1)
	}
}

// RecordStorageWrite records a document save.
func (m *Metrics) RecordStorageWrite(err error) {
	m.storageWrites.Add(1)
	if err != nil {
		m.storageErrors.Add(1)
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	RequestsTotal       int64
	ResponsesSuccess    int64
	ResponsesFailure    int64
	DiagnosticsTotal    int64
	ActiveSessions      int64
	SessionsTotal       int64
	InteractionsPending int64
	InteractionsTotal   int64
	ProxyCallsTotal     int64
	ProxyErrorsTotal    int64
	ProxyLatencyNanos   int64
	StorageWrites       int64
	StorageErrors       int64
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal:       m.requestsTotal.Load(),
		ResponsesSuccess:    m.responsesSuccess.Load(),
		ResponsesFailure:    m.responsesFailure.Load(),
		DiagnosticsTotal:    m.diagnosticsTotal.Load(),
		ActiveSessions:      m.activeSessions.Load(),
		SessionsTotal:       m.sessionsTotal.Load(),
		InteractionsPending: m.interactionsOpen.Load(),
		InteractionsTotal:   m.interactionsTotal.Load(),
		ProxyCallsTotal:     m.proxyCallsTotal.Load(),
		ProxyErrorsTotal:    m.proxyErrorsTotal.Load(),
		ProxyLatencyNanos:   m.proxyLatencyNanos.Load(),
		StorageWrites:       m.storageWrites.Load(),
		StorageErrors:       m.storageErrors.Load(),
	}
}

// ProxyLatencyAvgMs returns the mean forwarded-call latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) ProxyLatencyAvgMs() float64 {
	calls := m.proxyCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.proxyLatencyNanos.Load()) / float64(calls) / 1e6
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.requestsTotal, &m.responsesSuccess, &m.responsesFailure,
		&m.diagnosticsTotal, &m.activeSessions, &m.sessionsTotal,
		&m.interactionsOpen, &m.interactionsTotal,
		&m.proxyCallsTotal, &m.proxyErrorsTotal, &m.proxyLatencyNanos,
		&m.storageWrites, &m.storageErrors,
	} {
		c.Store(0)
	}
}
