package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the Bosun service
type Metrics struct {
	// Registry metrics
	RegistrationsTotal *prometheus.CounterVec
	HeartbeatsTotal    *prometheus.CounterVec
	AssignmentsTotal   *prometheus.CounterVec
	SweepRemovals      *prometheus.CounterVec
	ClientsGauge       *prometheus.GaugeVec
	GroupsGauge        *prometheus.GaugeVec

	// Snapshot metrics
	SnapshotDuration *prometheus.HistogramVec
	SnapshotErrors   *prometheus.CounterVec

	// WebSocket hub metrics
	HubConnections  *prometheus.GaugeVec
	HubMessages     *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}
