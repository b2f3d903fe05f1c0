package model

import "math"

// ChargerInput is the per-session part of an allocation request.
type ChargerInput struct {
	ChargerID             string  `json:"chargerId" validate:"required"`
	VehicleID             string  `json:"vehicleId" validate:"required"`
	MinutesUntilDeparture float64 `json:"minutesUntilDeparture" validate:"gte=0"`
	RequiredEnergyKwh     float64 `json:"requiredEnergyKwh" validate:"gte=0"`
	DeliveredEnergyKwh    float64 `json:"deliveredEnergyKwh" validate:"gte=0"`
	MaxChargeRateKw       float64 `json:"maxChargeRateKw" validate:"gt=0"`
}

// RemainingKwh returns max(0, required - delivered).
func (c ChargerInput) RemainingKwh() float64 {
	return math.Max(0, c.RequiredEnergyKwh-c.DeliveredEnergyKwh)
}

// AllocationRequest is the input of one allocation pass.
type AllocationRequest struct {
	BuildingBaseLoadKw float64        `json:"buildingBaseLoadKw" validate:"gte=0"`
	PenaltyLimitKw     float64        `json:"penaltyLimitKw" validate:"gt=0"`
	Chargers           []ChargerInput `json:"chargers" validate:"required,min=1,max=16,dive"`
}

// EVBudgetKw is the power left for charging under the penalty limit.
func (r AllocationRequest) EVBudgetKw() float64 {
	return math.Max(0, r.PenaltyLimitKw-r.BuildingBaseLoadKw)
}

// Allocation is the power granted to one charger.
type Allocation struct {
	ChargerID   string        `json:"chargerId" validate:"required"`
	AllocatedKw float64       `json:"allocatedKw" validate:"gte=0"`
	Status      ChargerStatus `json:"status" validate:"oneof=Charging ThrottledByAI Ready"`
	Reason      string        `json:"reason" validate:"required,max=140"`
}

// AllocationResponse is the wire shape exchanged with external allocators.
type AllocationResponse struct {
	Allocations []Allocation `json:"allocations" validate:"required,min=1,dive"`
	Summary     string       `json:"summary" validate:"required,max=220"`
}

// PlanSource records which path produced a plan.
type PlanSource string

const (
	SourceHeuristic PlanSource = "heuristic"
	SourceExternal  PlanSource = "external"
	SourceFallback  PlanSource = "fallback"
)

// AllocationPlan is the reconciled, budget safe result of an allocation pass.
type AllocationPlan struct {
	Allocations    []Allocation       `json:"allocations"`
	Summary        string             `json:"summary"`
	Source         PlanSource         `json:"source,omitempty"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
	Scores         map[string]float64 `json:"-"`
}

// TotalKw sums the granted power of every allocation.
func (p AllocationPlan) TotalKw() float64 {
	var total float64
	for _, a := range p.Allocations {
		total += a.AllocatedKw
	}
	return total
}

// ByCharger indexes allocations by charger id.
func (p AllocationPlan) ByCharger() map[string]Allocation {
	out := make(map[string]Allocation, len(p.Allocations))
	for _, a := range p.Allocations {
		out[a.ChargerID] = a
	}
	return out
}

// Throttled returns the ids of throttled chargers in plan order.
func (p AllocationPlan) Throttled() []string {
	var ids []string
	for _, a := range p.Allocations {
		if a.Status == StatusThrottled {
			ids = append(ids, a.ChargerID)
		}
	}
	return ids
}

// Response strips plan metadata and returns the wire shape.
func (p AllocationPlan) Response() AllocationResponse {
	return AllocationResponse{Allocations: p.Allocations, Summary: p.Summary}
}
