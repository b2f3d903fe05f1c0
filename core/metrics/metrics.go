package metrics

import "time"

// ChargerSample is the post-tick state of one charger.
type ChargerSample struct {
	ChargerID    string
	VehicleID    string
	AllocatedKw  float64
	Status       string
	DeliveredKwh float64
	RemainingKwh float64
	Urgency      float64
}

// TickResult summarises one simulation tick for observability backends.
type TickResult struct {
	Tick                int
	Time                time.Time
	Source              string
	FallbackReason      string
	BaseLoadKw          float64
	EVLoadKw            float64
	TotalLoadKw         float64
	BudgetKw            float64
	PenaltyLimitKw      float64
	AvoidedKw           float64 // this tick
	AvoidedPenaltyKw    float64 // cumulative
	EstimatedSavingsUsd float64
	Throttled           int
	Duration            time.Duration
	Chargers            []ChargerSample
}

// MetricsSink records tick results.
type MetricsSink interface {
	RecordTick(res TickResult) error
}

// SkipRecorder is implemented by sinks that count ticks skipped because the
// previous one was still running.
type SkipRecorder interface {
	RecordSkippedTick() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordTick(TickResult) error { return nil }
func (NopSink) RecordSkippedTick() error    { return nil }
