package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mail_gateway"

type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	Signups            *prometheus.CounterVec
	OutboundDuration   prometheus.Histogram
	TrackedAddresses   prometheus.Gauge
}

// New creates the gateway collectors and registers them, together with the
// Go runtime and process collectors, on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Rate limiter decisions by outcome.",
			},
			[]string{"decision"},
		),
		Signups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signups_total",
				Help:      "Admitted signup requests by result.",
			},
			[]string{"result"},
		),
		OutboundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbound_duration_seconds",
				Help:      "Latency of calls to the mailing-list provider in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		TrackedAddresses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_addresses",
				Help:      "Client addresses held by the rate limiter after the last sweep.",
			},
		),
	}

	registry.MustRegister(
		m.RateLimitDecisions,
		m.Signups,
		m.OutboundDuration,
		m.TrackedAddresses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
