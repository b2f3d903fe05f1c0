package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/peakguard/core/allocation"
	"github.com/kilianp07/peakguard/core/eventlog"
	"github.com/kilianp07/peakguard/core/model"
)

// EventTick is the event type emitted once per tick.
const EventTick = "simulation_tick"

// budgetSlackKw absorbs float noise in the post-plan budget check.
const budgetSlackKw = 1e-6

// ErrInvariantViolation marks a logic defect. The tick loop stops on it.
var ErrInvariantViolation = errors.New("simulation invariant violated")

// Allocator produces a plan for one request.
type Allocator interface {
	Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationPlan, error)
}

// Env holds the collaborators of a tick.
type Env struct {
	Allocator Allocator
	Policy    allocation.Policy
	Load      BaseLoadSampler
	Events    eventlog.Emitter
	Now       func() time.Time
	Config    Config
}

// Report describes what a tick did, for metrics and callers.
type Report struct {
	Tick        int
	Time        time.Time
	Plan        model.AllocationPlan
	BaseLoadKw  float64
	BudgetKw    float64
	EVLoadKw    float64
	TotalLoadKw float64
	AvoidedKw   float64
	Throttled   []string
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Tick advances st by one period and returns the new state. st is not
// modified. Any error wraps ErrInvariantViolation.
func Tick(ctx context.Context, st model.SimulationState, env Env) (model.SimulationState, Report, error) {
	next := st.Clone()
	now := env.Now()
	cfg := env.Config

	base := env.Load.Next(st.BuildingBaseLoadKw)
	req := next.AllocationRequest(base)
	budget := req.EVBudgetKw()

	var plan model.AllocationPlan
	if len(req.Chargers) > 0 {
		var err error
		plan, err = env.Allocator.Allocate(ctx, req)
		if err != nil {
			return st, Report{}, invariantf("allocator rejected site state: %v", err)
		}
		if err := checkPlan(req, plan); err != nil {
			return st, Report{}, err
		}
	} else {
		plan = model.AllocationPlan{Summary: "No vehicles connected.", Source: model.SourceHeuristic}
	}

	evLoad, throttled := integrate(next.Sessions, plan, env.Policy, cfg.Interval.Minutes())

	total := math.Round(base + evLoad)
	naive := base
	for _, s := range next.Sessions {
		if s.RemainingKwh() > 0 {
			naive += s.MaxChargeRateKw
		}
	}
	limit := next.PenaltyLimitKw
	avoided := math.Max(0, naive-limit) - math.Max(0, total-limit)
	next.AvoidedPenaltyKw += math.Max(0, avoided)
	next.EstimatedSavingsUsd = math.Round(next.AvoidedPenaltyKw*cfg.SavingsPerKw*100) / 100

	next.TickCount++
	next.SimulatedAt = now
	next.BuildingBaseLoadKw = base
	next.Rationale = plan.Summary
	next.ThrottledIDs = throttled
	next.FallbackUsed = plan.Source == model.SourceFallback
	next.LastError = plan.FallbackReason
	next.PeakLoadKw = math.Max(next.PeakLoadKw, total)
	next.History = appendBounded(next.History, model.ChartPoint{
		Time:          now,
		BaseLoadKw:    base,
		EVLoadKw:      math.Round(evLoad),
		TotalLoadKw:   total,
		DemandLimitKw: limit,
	}, cfg.HistoryWindow)
	next.Decisions = prependBounded(next.Decisions, model.Decision{
		Time:     now,
		Tick:     next.TickCount,
		Summary:  plan.Summary,
		Source:   plan.Source,
		Severity: severity(len(throttled), total, plan.Source, cfg.WarningLoadKw),
	}, cfg.DecisionFeedSize)

	if cfg.RetireCompleted {
		next.Sessions = retireReady(next.Sessions)
	}

	payload := map[string]any{
		"tick":         next.TickCount,
		"baseLoadKw":   base,
		"evLoadKw":     math.Round(evLoad),
		"totalLoadKw":  total,
		"throttledIds": throttled,
		"source":       string(plan.Source),
		"avoidedKw":    math.Max(0, avoided),
	}
	if plan.FallbackReason != "" {
		payload["fallbackReason"] = plan.FallbackReason
	}
	if env.Events != nil {
		env.Events.Emit(ctx, EventTick, payload)
	}

	return next, Report{
		Tick:        next.TickCount,
		Time:        now,
		Plan:        plan,
		BaseLoadKw:  base,
		BudgetKw:    budget,
		EVLoadKw:    evLoad,
		TotalLoadKw: total,
		AvoidedKw:   math.Max(0, avoided),
		Throttled:   throttled,
	}, nil
}

// checkPlan enforces coverage, non-negative grants and the EV budget.
func checkPlan(req model.AllocationRequest, plan model.AllocationPlan) error {
	if len(plan.Allocations) != len(req.Chargers) {
		return invariantf("plan has %d allocations for %d chargers", len(plan.Allocations), len(req.Chargers))
	}
	byID := plan.ByCharger()
	if len(byID) != len(req.Chargers) {
		return invariantf("plan repeats a charger")
	}
	for _, c := range req.Chargers {
		a, ok := byID[c.ChargerID]
		if !ok {
			return invariantf("plan is missing charger %s", c.ChargerID)
		}
		if a.AllocatedKw < 0 || math.IsNaN(a.AllocatedKw) {
			return invariantf("charger %s granted %v kW", c.ChargerID, a.AllocatedKw)
		}
	}
	if total, budget := plan.TotalKw(), req.EVBudgetKw(); total > budget+budgetSlackKw {
		return invariantf("plan total %v kW exceeds budget %v kW", total, budget)
	}
	return nil
}

// integrate applies plan to sessions in place and returns the EV load and
// the throttled charger ids. Energy accrues over the policy's simulated
// period while departures count down by the wall clock minutes elapsed.
func integrate(sessions []model.ChargerSession, plan model.AllocationPlan, p allocation.Policy, elapsedMinutes float64) (float64, []string) {
	byID := plan.ByCharger()
	hours := p.TickHours()
	var evLoad float64
	throttled := []string{}
	for i := range sessions {
		s := &sessions[i]
		in := s.Input()
		before := in.RemainingKwh()
		desired := p.DesiredKw(in)
		a := byID[s.ChargerID]

		kw := a.AllocatedKw
		if before <= 0 {
			kw = 0
		}
		delivered := math.Min(s.RequiredEnergyKwh, s.DeliveredEnergyKwh+kw*hours)
		s.DeliveredEnergyKwh = math.Max(s.DeliveredEnergyKwh, delivered)
		s.MinutesUntilDeparture = math.Max(0, s.MinutesUntilDeparture-elapsedMinutes)
		evLoad += kw

		s.Status = p.DeriveStatus(s.RemainingKwh(), desired, kw, p.ReadyEpsilonKwh)
		s.AllocatedKw = kw
		s.Reason = a.Reason
		if s.Status == model.StatusReady {
			// Residual within the epsilon counts as delivered so a Ready
			// session never draws power again.
			s.AllocatedKw = 0
			s.DeliveredEnergyKwh = math.Max(s.DeliveredEnergyKwh, s.RequiredEnergyKwh)
		}
		if s.Status == model.StatusThrottled {
			throttled = append(throttled, s.ChargerID)
		}
	}
	return evLoad, throttled
}

func severity(throttled int, totalKw float64, source model.PlanSource, warningKw float64) model.Severity {
	switch {
	case throttled > 0 || totalKw > warningKw:
		return model.SeverityWarning
	case source == model.SourceFallback:
		return model.SeverityInfo
	default:
		return model.SeveritySuccess
	}
}

func appendBounded(history []model.ChartPoint, p model.ChartPoint, window int) []model.ChartPoint {
	history = append(history, p)
	if over := len(history) - window; over > 0 {
		history = append([]model.ChartPoint(nil), history[over:]...)
	}
	return history
}

func prependBounded(feed []model.Decision, d model.Decision, size int) []model.Decision {
	out := make([]model.Decision, 0, size)
	out = append(out, d)
	for _, old := range feed {
		if len(out) == size {
			break
		}
		out = append(out, old)
	}
	return out
}

func retireReady(sessions []model.ChargerSession) []model.ChargerSession {
	out := sessions[:0]
	for _, s := range sessions {
		if s.Status != model.StatusReady {
			out = append(out, s)
		}
	}
	return out
}
