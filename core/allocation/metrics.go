package allocation

import "github.com/prometheus/client_golang/prometheus"

var (
	plansTotal       *prometheus.CounterVec
	externalLatency  prometheus.Histogram
	correctionsTotal *prometheus.CounterVec
	budgetUsage      prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec, prometheus.Gauge) {
	plans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_plans_total",
			Help: "Allocation plans produced, by source",
		},
		[]string{"source"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_external_latency_seconds",
			Help:    "Latency of external allocator calls",
			Buckets: prometheus.DefBuckets,
		},
	)
	corr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_reconcile_corrections_total",
			Help: "Corrections applied to external proposals, by kind",
		},
		[]string{"kind"},
	)
	usage := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocation_budget_usage_ratio",
			Help: "Share of the EV budget granted by the last plan",
		},
	)
	return plans, lat, corr, usage
}

func init() {
	plansTotal, externalLatency, correctionsTotal, budgetUsage = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(plansTotal, externalLatency, correctionsTotal, budgetUsage)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	plansTotal, externalLatency, correctionsTotal, budgetUsage = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func recordPlan(source string, totalKw, budgetKw float64, stats ReconcileStats) {
	plansTotal.WithLabelValues(source).Inc()
	if budgetKw > 0 {
		budgetUsage.Set(totalKw / budgetKw)
	} else {
		budgetUsage.Set(0)
	}
	if stats.Substituted > 0 {
		correctionsTotal.WithLabelValues("substituted").Add(float64(stats.Substituted))
	}
	if stats.Clamped > 0 {
		correctionsTotal.WithLabelValues("clamped").Add(float64(stats.Clamped))
	}
	if stats.Rescaled {
		correctionsTotal.WithLabelValues("rescaled").Inc()
	}
}
