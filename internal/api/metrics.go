package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	remoteFailures atomic.Int64
	issuesCreated  atomic.Int64
	issuesUnlinked atomic.Int64
	refreshes      atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Requests       int64   `json:"requests"`
	ServerErrors   int64   `json:"server_errors"`
	ClientErrors   int64   `json:"client_errors"`
	RemoteFailures int64   `json:"github_failures"`
	IssuesCreated  int64   `json:"issues_created"`
	IssuesUnlinked int64   `json:"issues_unlinked"`
	Refreshes      int64   `json:"bulk_refreshes"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordRemoteFailure counts a GitHub authentication or communication failure.
func (m *Metrics) RecordRemoteFailure() {
	m.remoteFailures.Add(1)
}

// RecordIssueCreated counts an issue created for a task.
func (m *Metrics) RecordIssueCreated() {
	m.issuesCreated.Add(1)
}

// RecordUnlinked adds n to the count of links cleared for missing issues.
func (m *Metrics) RecordUnlinked(n int64) {
	m.issuesUnlinked.Add(n)
}

// RecordRefresh counts a bulk refresh.
func (m *Metrics) RecordRefresh() {
	m.refreshes.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
		Requests:       m.requests.Load(),
		ServerErrors:   m.serverErrors.Load(),
		ClientErrors:   m.clientErrors.Load(),
		RemoteFailures: m.remoteFailures.Load(),
		IssuesCreated:  m.issuesCreated.Load(),
		IssuesUnlinked: m.issuesUnlinked.Load(),
		Refreshes:      m.refreshes.Load(),
	}
}
