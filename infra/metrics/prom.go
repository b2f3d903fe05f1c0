package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/peakguard/core/metrics"
	"github.com/kilianp07/peakguard/core/model"
)

// PromSink exposes site load and per charger allocations as Prometheus
// collectors.
type PromSink struct {
	load      *prometheus.GaugeVec
	avoided   prometheus.Gauge
	savings   prometheus.Gauge
	ticks     *prometheus.CounterVec
	skipped   prometheus.Counter
	duration  prometheus.Histogram
	allocated *prometheus.GaugeVec
	status    *prometheus.GaugeVec
}

// NewPromSink registers collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers collectors on reg. Collectors that are
// already registered are reused, so building the sink twice is safe.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_load_kw",
			Help: "Site load by component after the last tick",
		}, []string{"component"}),
		avoided: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "site_avoided_penalty_kw",
			Help: "Cumulative demand above the penalty limit avoided by allocation",
		}),
		savings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "site_estimated_savings_usd",
			Help: "Estimated demand charge savings",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulation_ticks_total",
			Help: "Completed simulation ticks by plan source",
		}, []string{"source"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulation_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulation_tick_duration_seconds",
			Help:    "Wall time spent in one tick",
			Buckets: prometheus.DefBuckets,
		}),
		allocated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charger_allocated_kw",
			Help: "Power granted to each charger by the last plan",
		}, []string{"charger_id"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charger_status",
			Help: "1 for the current status of each charger, 0 otherwise",
		}, []string{"charger_id", "status"}),
	}
	if err := register(reg, &s.load); err != nil {
		return nil, err
	}
	if err := register(reg, &s.avoided); err != nil {
		return nil, err
	}
	if err := register(reg, &s.savings); err != nil {
		return nil, err
	}
	if err := register(reg, &s.ticks); err != nil {
		return nil, err
	}
	if err := register(reg, &s.skipped); err != nil {
		return nil, err
	}
	if err := register(reg, &s.duration); err != nil {
		return nil, err
	}
	if err := register(reg, &s.allocated); err != nil {
		return nil, err
	}
	if err := register(reg, &s.status); err != nil {
		return nil, err
	}
	return s, nil
}

// register registers *c, swapping in the existing collector when an
// identical one is already present.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return err
		}
		*c = existing
	}
	return nil
}

var statuses = []model.ChargerStatus{model.StatusCharging, model.StatusThrottled, model.StatusReady}

// RecordTick updates every gauge from res.
func (s *PromSink) RecordTick(res coremetrics.TickResult) error {
	s.load.WithLabelValues("base").Set(res.BaseLoadKw)
	s.load.WithLabelValues("ev").Set(res.EVLoadKw)
	s.load.WithLabelValues("total").Set(res.TotalLoadKw)
	s.load.WithLabelValues("budget").Set(res.BudgetKw)
	s.load.WithLabelValues("limit").Set(res.PenaltyLimitKw)
	s.avoided.Set(res.AvoidedPenaltyKw)
	s.savings.Set(res.EstimatedSavingsUsd)
	s.ticks.WithLabelValues(res.Source).Inc()
	s.duration.Observe(res.Duration.Seconds())
	for _, c := range res.Chargers {
		s.allocated.WithLabelValues(c.ChargerID).Set(c.AllocatedKw)
		for _, st := range statuses {
			v := 0.0
			if string(st) == c.Status {
				v = 1
			}
			s.status.WithLabelValues(c.ChargerID, string(st)).Set(v)
		}
	}
	return nil
}

// RecordSkippedTick counts a skipped tick.
func (s *PromSink) RecordSkippedTick() error {
	s.skipped.Inc()
	return nil
}
