package allocation

import (
	"fmt"
	"math"

	"github.com/kilianp07/peakguard/core/model"
)

// ReconcileStats describes the corrections applied to an external proposal.
type ReconcileStats struct {
	Substituted int     // sessions missing from the proposal
	Clamped     int     // grants pulled into [0, maxChargeRateKw]
	Rescaled    bool    // proposal total exceeded the budget
	Scale       float64 // factor applied when Rescaled
}

// Reconciler merges an untrusted proposal with the greedy baseline. Labels
// and reasons come from the proposal; magnitudes are clamped per charger and
// then scaled down globally until the plan fits the EV budget.
type Reconciler struct {
	Policy Policy
}

// Reconcile returns a plan covering every charger of req. A nil proposal
// yields the baseline entries. The baseline must cover req.
func (r Reconciler) Reconcile(req model.AllocationRequest, proposal *model.AllocationResponse, baseline model.AllocationPlan) (model.AllocationPlan, ReconcileStats, error) {
	var stats ReconcileStats
	base := baseline.ByCharger()
	external := map[string]model.Allocation{}
	summary := baseline.Summary
	if proposal != nil {
		for _, a := range proposal.Allocations {
			if _, seen := external[a.ChargerID]; !seen {
				external[a.ChargerID] = a
			}
		}
		if proposal.Summary != "" {
			summary = proposal.Summary
		}
	}

	merged := make([]model.Allocation, 0, len(req.Chargers))
	desired := make([]float64, 0, len(req.Chargers))
	var total float64
	for _, c := range req.Chargers {
		fallback, ok := base[c.ChargerID]
		if !ok {
			return model.AllocationPlan{}, stats, fmt.Errorf("allocation: baseline has no entry for charger %s", c.ChargerID)
		}
		entry := fallback
		switch ext, has := external[c.ChargerID]; {
		case c.RemainingKwh() <= 0:
			entry = model.Allocation{ChargerID: c.ChargerID, Status: model.StatusReady, Reason: heuristicReason(model.StatusReady)}
		case !has:
			stats.Substituted++
		default:
			kw := roundKw(ext.AllocatedKw, c.MaxChargeRateKw)
			if kw != ext.AllocatedKw {
				stats.Clamped++
			}
			entry = model.Allocation{ChargerID: c.ChargerID, AllocatedKw: kw, Status: ext.Status, Reason: ext.Reason}
			if !entry.Status.Valid() {
				entry.Status = fallback.Status
			}
		}
		merged = append(merged, entry)
		desired = append(desired, r.Policy.DesiredKw(c))
		total += entry.AllocatedKw
	}

	budget := req.EVBudgetKw()
	if total > budget && total > 0 {
		stats.Rescaled = true
		stats.Scale = budget / total
		for i := range merged {
			if merged[i].AllocatedKw == 0 {
				continue
			}
			merged[i].AllocatedKw = math.Floor(merged[i].AllocatedKw * stats.Scale)
			if merged[i].Status == model.StatusCharging &&
				(merged[i].AllocatedKw == 0 || merged[i].AllocatedKw+r.Policy.ThrottleToleranceKw < desired[i]) {
				merged[i].Status = model.StatusThrottled
			}
		}
	}

	return model.AllocationPlan{
		Allocations: merged,
		Summary:     summary,
		Source:      model.SourceExternal,
		Scores:      baseline.Scores,
	}, stats, nil
}
