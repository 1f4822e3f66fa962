package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"trimbot/internal/links"
)

// Metrics holds the Prometheus collectors fed by Stats. Only counts and
// latencies are exported; URLs are never used as label values.
type Metrics struct {
	messages *prometheus.CounterVec
	shorten  *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trimbot",
			Name:      "rewrites_total",
			Help:      "Messages processed, by whether the text changed.",
		}, []string{"changed"}),
		shorten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trimbot",
			Name:      "shorten_total",
			Help:      "Distinct URLs handled, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trimbot",
			Name:      "shorten_duration_seconds",
			Help:      "Latency of shortener calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.shorten, m.latency)
	}
	return m
}

func (m *Metrics) observe(res links.Result, changed bool) {
	if changed {
		m.messages.WithLabelValues("true").Inc()
	} else {
		m.messages.WithLabelValues("false").Inc()
	}
	for _, o := range res.Outcomes {
		m.shorten.WithLabelValues(string(o.Status)).Inc()
		if o.Status != links.StatusSkipped {
			m.latency.Observe(o.Elapsed.Seconds())
		}
	}
}
