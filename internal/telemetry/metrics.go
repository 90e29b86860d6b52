// Package telemetry holds the Prometheus instrumentation of the engine.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the engine's metric set on a private registry. A nil
// *Metrics is valid and drops every observation.
type Metrics struct {
	Registry *prometheus.Registry

	requestsClaimed  prometheus.Counter
	requestsFinished *prometheus.CounterVec
	candidatesProbed prometheus.Counter
	probeRejections  *prometheus.CounterVec
	externalCalls    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
}

// New builds the metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requestsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cotador_requests_claimed_total",
			Help: "Quote requests claimed by this worker process.",
		}),
		requestsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cotador_requests_finished_total",
			Help: "Quote requests finished, by terminal status.",
		}, []string{"status"}),
		candidatesProbed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cotador_candidates_probed_total",
			Help: "Candidates probed by the block search.",
		}),
		probeRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cotador_probe_rejections_total",
			Help: "Probe rejections, by reason.",
		}, []string{"reason"}),
		externalCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cotador_external_calls_total",
			Help: "Billed external calls, by integration kind.",
		}, []string{"kind"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cotador_request_duration_seconds",
			Help:    "Wall time of one request from claim to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) Claimed() {
	if m != nil {
		m.requestsClaimed.Inc()
	}
}

func (m *Metrics) Finished(status string, elapsed time.Duration) {
	if m != nil {
		m.requestsFinished.WithLabelValues(status).Inc()
		m.requestDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Probed() {
	if m != nil {
		m.candidatesProbed.Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.probeRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ExternalCalls(kind string, n int) {
	if m != nil {
		m.externalCalls.WithLabelValues(kind).Add(float64(n))
	}
}

// CounterValue reads the current value of a counter by name and exact
// label pairs. Zero when the series does not exist yet.
func (m *Metrics) CounterValue(name string, labels map[string]string) float64 {
	if m == nil {
		return 0
	}
	fams, err := m.Registry.Gather()
	if err != nil {
		return 0
	}
	for _, fam := range fams {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchesLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchesLabels(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
