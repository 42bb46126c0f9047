package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveLegs        *prometheus.GaugeVec
	LegEvents         *prometheus.CounterVec
	RelayedFrames     *prometheus.CounterVec
	Truncations       prometheus.Counter
	MalformedMessages *prometheus.CounterVec
	UsageTokens       *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
}

// NewMetrics registers all instruments on reg. Tests pass a private
// registry so repeated construction does not collide.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveLegs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_legs",
			Help:      "Live connections per leg role.",
		}, []string{"role"}),
		LegEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leg_events_total",
			Help:      "Leg lifecycle events by role and event.",
		}, []string{"role", "event"}),
		RelayedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_frames_total",
			Help:      "Frames relayed between legs by direction.",
		}, []string{"direction"}),
		Truncations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncations_total",
			Help:      "Barge-in truncation instructions sent to the model leg.",
		}),
		MalformedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Unparseable inbound messages dropped, by leg.",
		}, []string{"leg"}),
		UsageTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_tokens_total",
			Help:      "Cumulative model token usage by direction.",
		}, []string{"direction"}),
		WSWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by leg.",
		}, []string{"leg"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
