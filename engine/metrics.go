package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the per-connection counter set, rescoped from the teacher's
// broker-wide globals (stat.go) to one injectable collector per engine so
// that a multi-client fleet doesn't collide on prometheus.MustRegister.
type Metrics struct {
	PacketsSent     prometheus.Counter
	BytesSent       prometheus.Counter
	PacketsReceived prometheus.Counter
	BytesReceived   prometheus.Counter
	Reconnects      prometheus.Counter
	ConnState       prometheus.Gauge // current State as a number
}

// NewMetrics builds a fresh, unregistered collector set labeled by
// clientID. Callers that want them exposed on a /metrics endpoint must
// register them explicitly on their own registry.
func NewMetrics(clientID string) *Metrics {
	labels := prometheus.Labels{"client_id": clientID}
	return &Metrics{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_client_packets_sent_total", Help: "Control packets sent.", ConstLabels: labels,
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_client_bytes_sent_total", Help: "Bytes sent.", ConstLabels: labels,
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_client_packets_received_total", Help: "Control packets received.", ConstLabels: labels,
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_client_bytes_received_total", Help: "Bytes received.", ConstLabels: labels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_client_reconnects_total", Help: "Reconnect attempts.", ConstLabels: labels,
		}),
		ConnState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_client_conn_state", Help: "Current connection state (engine.State ordinal).", ConstLabels: labels,
		}),
	}
}

// Collectors returns every metric for bulk registration, e.g.
// registry.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.PacketsSent, m.BytesSent, m.PacketsReceived, m.BytesReceived, m.Reconnects, m.ConnState}
}
