package allocation

import (
	"math"
	"sort"

	"github.com/kilianp07/peakguard/core/model"
)

// GreedyAllocator grants power in descending urgency order until the EV
// budget is exhausted. It is pure: the same request always yields the same
// plan.
type GreedyAllocator struct {
	Policy Policy
}

type candidate struct {
	in      model.ChargerInput
	index   int
	score   float64
	desired float64
}

// NewGreedyAllocator returns an allocator using p.
func NewGreedyAllocator(p Policy) GreedyAllocator {
	return GreedyAllocator{Policy: p}
}

func (g GreedyAllocator) buildCandidates(chargers []model.ChargerInput) []candidate {
	list := make([]candidate, len(chargers))
	for i, c := range chargers {
		list[i] = candidate{
			in:      c,
			index:   i,
			score:   g.Policy.Urgency(c),
			desired: g.Policy.DesiredKw(c),
		}
	}
	// Stable sort keeps input order between equal scores.
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	return list
}

// Allocate returns one allocation per charger, in request order. The sum of
// grants never exceeds the EV budget.
func (g GreedyAllocator) Allocate(req model.AllocationRequest) model.AllocationPlan {
	budget := req.EVBudgetKw()
	list := g.buildCandidates(req.Chargers)

	grants := make([]float64, len(req.Chargers))
	scores := make(map[string]float64, len(list))
	// Grants are whole kW, so flooring the budget keeps every rounded grant
	// inside it.
	remaining := math.Floor(budget)
	for _, c := range list {
		scores[c.in.ChargerID] = c.score
		if c.score == NoDemand || remaining <= 0 {
			continue
		}
		granted := roundKw(math.Min(c.desired, remaining), c.in.MaxChargeRateKw)
		grants[c.index] = granted
		remaining -= granted
	}

	plan := model.AllocationPlan{
		Allocations: make([]model.Allocation, len(req.Chargers)),
		Source:      model.SourceHeuristic,
		Scores:      scores,
	}
	throttled := 0
	for i, c := range req.Chargers {
		status := g.Policy.DeriveStatus(c.RemainingKwh(), g.Policy.DesiredKw(c), grants[i], 0)
		kw := grants[i]
		if status == model.StatusReady {
			kw = 0
		}
		if status == model.StatusThrottled {
			throttled++
		}
		plan.Allocations[i] = model.Allocation{
			ChargerID:   c.ChargerID,
			AllocatedKw: kw,
			Status:      status,
			Reason:      heuristicReason(status),
		}
	}
	plan.Summary = heuristicSummary(budget, throttled)
	return plan
}
