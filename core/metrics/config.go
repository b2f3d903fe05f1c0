package metrics

import "github.com/kilianp07/peakguard/core/factory"

// Config lists the sinks to build and the address of the Prometheus
// endpoint. An empty PrometheusAddr disables the endpoint.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusAddr string                 `json:"prometheus_addr"`
}
