package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/peakguard/core/logger"
	"github.com/kilianp07/peakguard/core/metrics"
	"github.com/kilianp07/peakguard/core/model"
	"github.com/kilianp07/peakguard/core/monitoring"
	"github.com/kilianp07/peakguard/internal/eventbus"
)

// ErrTickInProgress is returned by Step while another tick is running.
var ErrTickInProgress = errors.New("simulation: tick already in progress")

// Driver owns the simulation state and advances it on a fixed interval.
// Ticks never overlap: a tick that would start while the previous one is
// still running is skipped, not queued.
type Driver struct {
	env  Env
	log  logger.Logger
	sink metrics.MetricsSink
	bus  *eventbus.TypedBus[model.SimulationState]

	mu    sync.RWMutex
	state model.SimulationState

	busy    atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup
}

// NewDriver creates a driver starting from initial. A nil sink records
// nothing.
func NewDriver(initial model.SimulationState, env Env, sink metrics.MetricsSink, log logger.Logger) *Driver {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	d := &Driver{
		env:   env,
		log:   log,
		sink:  sink,
		bus:   eventbus.NewTyped[model.SimulationState](),
		state: initial.Clone(),
	}
	d.bus.Publish(initial.Clone())
	return d
}

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() model.SimulationState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.Clone()
}

// Subscribe returns a channel receiving a snapshot after every tick. The
// current snapshot is delivered first.
func (d *Driver) Subscribe() <-chan model.SimulationState {
	return d.bus.Subscribe()
}

// Unsubscribe releases a channel obtained from Subscribe.
func (d *Driver) Unsubscribe(ch <-chan model.SimulationState) {
	d.bus.Unsubscribe(ch)
}

// Skipped returns how many ticks were skipped so far.
func (d *Driver) Skipped() int64 {
	return d.skipped.Load()
}

// Step runs one tick synchronously.
func (d *Driver) Step(ctx context.Context) (Report, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return Report{}, ErrTickInProgress
	}
	defer d.busy.Store(false)
	return d.tick(ctx)
}

// Run ticks immediately and then every Interval until ctx is canceled or a
// tick fails. A failed tick is an invariant violation and is returned.
// Subscriber channels are closed when Run returns.
func (d *Driver) Run(ctx context.Context) error {
	defer d.bus.Close()
	ticker := time.NewTicker(d.env.Config.Interval)
	defer ticker.Stop()

	fatal := make(chan error, 1)
	d.launch(ctx, fatal)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		case err := <-fatal:
			d.wg.Wait()
			return err
		case <-ticker.C:
			d.launch(ctx, fatal)
		}
	}
}

func (d *Driver) launch(ctx context.Context, fatal chan<- error) {
	if !d.busy.CompareAndSwap(false, true) {
		n := d.skipped.Add(1)
		d.log.Warnf("previous tick still running, skipping (total skipped %d)", n)
		if r, ok := d.sink.(metrics.SkipRecorder); ok {
			if err := r.RecordSkippedTick(); err != nil {
				d.log.Errorf("metrics skip error: %v", err)
			}
		}
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)
		if _, err := d.tick(ctx); err != nil && ctx.Err() == nil {
			select {
			case fatal <- err:
			default:
			}
		}
	}()
}

func (d *Driver) tick(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	cur := d.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			cause := monitoring.CapturePanic(r, map[string]string{"component": "simulation"})
			err = fmt.Errorf("%w: tick panicked: %v", ErrInvariantViolation, cause)
			d.log.Errorf("tick %d aborted: %v", cur.TickCount+1, err)
		}
	}()

	next, rep, err := Tick(ctx, cur, d.env)
	if err != nil {
		d.log.Errorf("tick %d aborted: %v", cur.TickCount+1, err)
		monitoring.CaptureException(err, map[string]string{"component": "simulation"})
		return Report{}, err
	}

	d.mu.Lock()
	d.state = next
	d.mu.Unlock()
	d.bus.Publish(next.Clone())

	if err := d.sink.RecordTick(tickResult(next, rep, time.Since(start))); err != nil {
		d.log.Errorf("metrics error: %v", err)
	}
	d.log.Debugw("tick complete", map[string]any{
		"tick":      rep.Tick,
		"base_kw":   rep.BaseLoadKw,
		"ev_kw":     rep.EVLoadKw,
		"total_kw":  rep.TotalLoadKw,
		"source":    string(rep.Plan.Source),
		"throttled": rep.Throttled,
	})
	return rep, nil
}

func tickResult(st model.SimulationState, rep Report, took time.Duration) metrics.TickResult {
	res := metrics.TickResult{
		Tick:                rep.Tick,
		Time:                rep.Time,
		Source:              string(rep.Plan.Source),
		FallbackReason:      rep.Plan.FallbackReason,
		BaseLoadKw:          rep.BaseLoadKw,
		EVLoadKw:            rep.EVLoadKw,
		TotalLoadKw:         rep.TotalLoadKw,
		BudgetKw:            rep.BudgetKw,
		PenaltyLimitKw:      st.PenaltyLimitKw,
		AvoidedKw:           rep.AvoidedKw,
		AvoidedPenaltyKw:    st.AvoidedPenaltyKw,
		EstimatedSavingsUsd: st.EstimatedSavingsUsd,
		Throttled:           len(rep.Throttled),
		Duration:            took,
	}
	for _, s := range st.Sessions {
		res.Chargers = append(res.Chargers, metrics.ChargerSample{
			ChargerID:    s.ChargerID,
			VehicleID:    s.VehicleID,
			AllocatedKw:  s.AllocatedKw,
			Status:       string(s.Status),
			DeliveredKwh: s.DeliveredEnergyKwh,
			RemainingKwh: s.RemainingKwh(),
			Urgency:      rep.Plan.Scores[s.ChargerID],
		})
	}
	return res
}
