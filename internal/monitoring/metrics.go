package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles the Prometheus metrics for the claim engine and
// exposes a handler for the /metrics endpoint.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	FixesAccepted   prometheus.Counter
	FixesRejected   *prometheus.CounterVec
	CollisionChecks prometheus.Counter
	WarningLevel    prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped *prometheus.CounterVec
	ClaimsSubmitted prometheus.Counter
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &EngineCollector{
		gatherer: gatherer,
		FixesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_fixes_accepted_total",
			Help: "Total GPS fixes accepted onto a claim path.",
		}),
		FixesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_fixes_rejected_total",
			Help: "Total GPS fixes rejected by the sample filter, labeled by reason.",
		}, []string{"reason"}),
		CollisionChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_collision_checks_total",
			Help: "Total periodic path proximity checks run.",
		}),
		WarningLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "claim_warning_level",
			Help: "Current collision warning level (0=safe through 4=violation) of the most recently checked session.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_sessions_started_total",
			Help: "Total claim sessions started.",
		}),
		SessionsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_sessions_stopped_total",
			Help: "Total claim sessions stopped, labeled by reason.",
		}, []string{"reason"}),
		ClaimsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_territories_submitted_total",
			Help: "Total closed claims persisted as territories.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.FixesAccepted, c.FixesRejected, c.CollisionChecks,
		c.WarningLevel, c.SessionsStarted, c.SessionsStopped, c.ClaimsSubmitted,
	} {
		if err := reg.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return c, nil
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (c *EngineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
