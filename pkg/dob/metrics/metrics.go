// Package metrics exposes the prometheus collectors for dobcore's hard
// core. This is an ambient concern added by SPEC_FULL.md §4.11: the
// original spec.md does not exclude observability for the core, so the
// expansion carries the teacher's prometheus/common dependency forward by
// wiring it against the current client_golang collector API instead of the
// deprecated prometheus/common/log helper the teacher used directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric dobcore produces. Callers register it
// into whichever prometheus.Registerer exposes their /metrics endpoint.
type Collectors struct {
	Elected              prometheus.Gauge
	PublishTicks         prometheus.Counter
	OpenConnections      prometheus.Gauge
	AdmissionRejections  *prometheus.CounterVec
	Evictions            prometheus.Counter
	UnsentQueueDepth     prometheus.Gauge
}

// New builds the Collectors without registering them.
func New(namespace string) *Collectors {
	return &Collectors{
		Elected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elected",
			Help:      "1 if this node currently believes it is the elected coordinator, 0 otherwise.",
		}),
		PublishTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_publish_ticks_total",
			Help:      "Number of state publisher ticks where a publication was sent.",
		}),
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Number of currently open connections in the arbiter's index.",
		}),
		AdmissionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Number of rejected connect requests by reason.",
		}, []string{"reason"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_evictions_total",
			Help:      "Number of connections evicted due to process exit.",
		}),
		UnsentQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unsent_queue_depth",
			Help:      "Current depth of the connection handler's unsent distribution queue.",
		}),
	}
}

// MustRegister registers every collector into reg, panicking on conflict,
// matching the common client_golang idiom for process-lifetime metrics.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.Elected,
		c.PublishTicks,
		c.OpenConnections,
		c.AdmissionRejections,
		c.Evictions,
		c.UnsentQueueDepth,
	)
}
