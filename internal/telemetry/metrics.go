// Package telemetry exposes Prometheus instrumentation for the
// connection core (spec component K, added).
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters and gauges one listener/connection set
// reports to. The zero value is unusable; use NewMetrics.
type Metrics struct {
	ConnectionsOpen        prometheus.Gauge
	ParcelsRetransmitted   prometheus.Counter
	AckWindowBackpressure  prometheus.Counter
	BytesSent              prometheus.Counter
	BytesReceived          prometheus.Counter
}

// NewMetrics constructs a Metrics bundle and registers it against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry across parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relnet",
			Name:      "connections_open",
			Help:      "Number of connections currently in the Open state.",
		}),
		ParcelsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relnet",
			Name:      "parcels_retransmitted_total",
			Help:      "Number of reliable parcel payloads re-enqueued after presumed loss.",
		}),
		AckWindowBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relnet",
			Name:      "ack_window_backpressure_total",
			Help:      "Number of times a flush was suppressed by a full ack window.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relnet",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to the transmitter.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relnet",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the transmitter.",
		}),
	}
	reg.MustRegister(
		m.ConnectionsOpen,
		m.ParcelsRetransmitted,
		m.AckWindowBackpressure,
		m.BytesSent,
		m.BytesReceived,
	)
	return m
}

// Noop returns a Metrics bundle registered against a private registry, for
// callers that want the instrumentation calls to be safe no-ops without
// wiring a real collector.
func Noop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
