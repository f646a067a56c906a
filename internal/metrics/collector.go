package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dappbridge"

type metricDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(Snapshot) float64
}

// Collector exports a Metrics instance as Prometheus metrics.
type Collector struct {
	m     *Metrics
	descs []metricDesc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading m on every scrape.
func NewCollector(m *Metrics) *Collector {
	counter := func(name, help string, v func(Snapshot) float64) metricDesc {
		return metricDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			kind:  prometheus.CounterValue,
			value: v,
		}
	}
	gauge := func(name, help string, v func(Snapshot) float64) metricDesc {
		d := counter(name, help, v)
		d.kind = prometheus.GaugeValue
		return d
	}

	return &Collector{
		m: m,
		descs: []metricDesc{
			counter("requests_total", "Provider calls received from pages.",
				func(s Snapshot) float64 { return float64(s.RequestsTotal) }),
			counter("responses_success_total", "Successful rpc_response messages sent.",
				func(s Snapshot) float64 { return float64(s.ResponsesSuccess) }),
			counter("responses_failure_total", "Failed rpc_response messages sent.",
				func(s Snapshot) float64 { return float64(s.ResponsesFailure) }),
			counter("diagnostics_total", "Captured bridge defects.",
				func(s Snapshot) float64 { return float64(s.DiagnosticsTotal) }),
			gauge("sessions_active", "Connected pages.",
				func(s Snapshot) float64 { return float64(s.ActiveSessions) }),
			counter("sessions_total", "Page connections accepted.",
				func(s Snapshot) float64 { return float64(s.SessionsTotal) }),
			gauge("interactions_pending", "Overlays waiting for the user.",
				func(s Snapshot) float64 { return float64(s.InteractionsPending) }),
			counter("interactions_total", "Overlays opened.",
				func(s Snapshot) float64 { return float64(s.InteractionsTotal) }),
			counter("proxy_calls_total", "Calls forwarded to RPC endpoints.",
				func(s Snapshot) float64 { return float64(s.ProxyCallsTotal) }),
			counter("proxy_errors_total", "Forwarded calls that failed.",
				func(s Snapshot) float64 { return float64(s.ProxyErrorsTotal) }),
			counter("proxy_latency_seconds_total", "Cumulative forwarded-call latency.",
				func(s Snapshot) float64 { return float64(s.ProxyLatencyNanos) / 1e9 }),
			counter("storage_writes_total", "Storage document saves.",
				func(s Snapshot) float64 { return float64(s.StorageWrites) }),
			counter("storage_errors_total", "Storage document saves that failed.",
				func(s Snapshot) float64 { return float64(s.StorageErrors) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(snap))
	}
}

// NewRegistry returns a registry holding the collector for m plus the Go
// runtime and process collectors.
func NewRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(m),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}
