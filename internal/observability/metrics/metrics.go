// Package metrics exposes the Prometheus counters and gauges that the
// ingest and edge binaries report operational health through. Naming and the counter/gauge split follow the admission metrics
// a sibling ingest system in this codebase's lineage already shipped;
// labels stay low-cardinality by design — no connection_id, no stream key.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsAdmittedTotal counts publishes that passed admission.
	ConnectionsAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_ingest_connections_admitted_total",
		Help: "Total number of RTMP publish attempts admitted into a room.",
	})

	// ConnectionsRejectedTotal counts publishes rejected during admission, by cause.
	ConnectionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_ingest_connections_rejected_total",
		Help: "Total number of RTMP publish attempts rejected during admission, by cause.",
	}, []string{"cause"})

	// DisconnectsTotal counts ingest connection teardowns, by disconnect cause.
	DisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_ingest_disconnects_total",
		Help: "Total number of ingest connection teardowns, by disconnect cause.",
	}, []string{"cause"})

	// ActiveConnections tracks the number of ingest connections currently in their Run loop.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_ingest_active_connections",
		Help: "Current number of ingest connections actively publishing.",
	})

	// TranscoderAssignmentsTotal counts transcoder recruitment outcomes, by result.
	TranscoderAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_transcoder_assignments_total",
		Help: "Total number of transcoder worker assignment attempts, by result (assigned/no_transcoder/failed).",
	}, []string{"result"})

	// TranscoderJobsActive tracks transcoder workers currently attached to a room.
	TranscoderJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_transcoder_jobs_active",
		Help: "Current number of transcoder worker jobs attached to a live room.",
	})

	// EdgeRequestsTotal counts edge-server HTTP responses, by route and status class.
	EdgeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_http_requests_total",
		Help: "Total number of edge server HTTP responses, by route and status class.",
	}, []string{"route", "status_class"})
)

// RecordAdmit increments the admitted-connection counter and the active gauge.
func RecordAdmit() {
	ConnectionsAdmittedTotal.Inc()
	ActiveConnections.Inc()
}

// RecordReject increments the rejected-connection counter for cause.
func RecordReject(cause string) {
	ConnectionsRejectedTotal.WithLabelValues(cause).Inc()
}

// RecordDisconnect increments the disconnect counter for cause and decrements
// the active gauge. Every admitted connection must eventually call this
// exactly once so the gauge doesn't drift.
func RecordDisconnect(cause string) {
	DisconnectsTotal.WithLabelValues(cause).Inc()
	ActiveConnections.Dec()
}

// RecordTranscoderAssignment increments the assignment-outcome counter and,
// for a successful assignment, the active transcoder job gauge.
func RecordTranscoderAssignment(result string) {
	TranscoderAssignmentsTotal.WithLabelValues(result).Inc()
	if result == "assigned" {
		TranscoderJobsActive.Inc()
	}
}

// RecordTranscoderJobEnded decrements the active transcoder job gauge.
func RecordTranscoderJobEnded() {
	TranscoderJobsActive.Dec()
}

// RecordEdgeRequest increments the edge HTTP request counter for route and statusClass.
func RecordEdgeRequest(route, statusClass string) {
	EdgeRequestsTotal.WithLabelValues(route, statusClass).Inc()
}

// Handler returns the promhttp handler the binaries mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
