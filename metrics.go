package sioclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zyxar/sioclient/engine"
)

const metricsNamespace = "sioclient"

// metrics holds the Prometheus collectors of one Registry.
type metrics struct {
	handshakes   *prometheus.CounterVec
	sent         *prometheus.CounterVec
	received     *prometheus.CounterVec
	disconnects  prometheus.Counter
	dropped      *prometheus.CounterVec
	connected    prometheus.Gauge
	pollDuration prometheus.Histogram
}

// newMetrics creates the collectors; a nil Registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Total number of handshakes by result",
		}, []string{"result"}),

		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Total number of packets POSTed by engine.io type",
		}, []string{"type"}),

		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_received_total",
			Help:      "Total number of packets received by engine.io type",
		}, []string{"type"}),

		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Total number of ended connection cycles",
		}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications the sink did not accept",
		}, []string{"event"}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_clients",
			Help:      "Number of connections with a running poll worker",
		}),

		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of long-poll requests in seconds",
			Buckets:   []float64{.05, .25, 1, 5, 15, 30, 60},
		}),
	}
}

func (m *metrics) packetSent(t engine.PacketType) {
	m.sent.WithLabelValues(t.String()).Inc()
}

func (m *metrics) packetReceived(t engine.PacketType) {
	m.received.WithLabelValues(t.String()).Inc()
}
