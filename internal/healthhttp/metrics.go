package healthhttp

import "github.com/prometheus/client_golang/prometheus"

// Registry holds the Prometheus collectors this pipeline feeds:
// per-connector error and reconnect counts, and dispatch outcomes.
type Registry struct {
	registry *prometheus.Registry

	ConnectorErrors    *prometheus.CounterVec
	ConnectorReconnects *prometheus.CounterVec
	DispatchOutcomes   *prometheus.CounterVec
	ActiveConnectors   prometheus.Gauge
}

// NewRegistry constructs a fresh Prometheus registry with this service's
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		ConnectorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_connector_errors_total",
				Help: "Total connector errors by source and kind.",
			},
			[]string{"source", "kind"},
		),
		ConnectorReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_connector_reconnects_total",
				Help: "Total successful reconnects after a disconnect, by source.",
			},
			[]string{"source"},
		),
		DispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_dispatch_outcomes_total",
				Help: "Total Causal API dispatch attempts by timeframe and outcome.",
			},
			[]string{"timeframe", "outcome"},
		),
		ActiveConnectors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_connectors",
				Help: "Number of connector pipelines currently running.",
			},
		),
	}

	reg.MustRegister(r.ConnectorErrors, r.ConnectorReconnects, r.DispatchOutcomes, r.ActiveConnectors)
	return r
}
