package allocation

import (
	"math"

	"github.com/kilianp07/peakguard/core/model"
)

// NoDemand is the urgency of a session that needs no more energy. It sorts
// below every session with remaining demand.
const NoDemand = -1.0

// Urgency scores how badly a session needs power now:
//
//	remainingKwh*EnergyWeight + DeparturePressure/max(MinDepartureMinutes, minutes)
//
// The score grows with remaining energy and shrinks with time to departure.
func (p Policy) Urgency(c model.ChargerInput) float64 {
	remaining := c.RemainingKwh()
	if remaining <= 0 {
		return NoDemand
	}
	minutes := math.Max(p.MinDepartureMinutes, c.MinutesUntilDeparture)
	return remaining*p.EnergyWeight + p.DeparturePressure/minutes
}

// DesiredKw is the power that would finish the remaining energy within one
// tick, capped at the charger limit.
func (p Policy) DesiredKw(c model.ChargerInput) float64 {
	return math.Min(c.MaxChargeRateKw, c.RemainingKwh()/p.TickHours())
}
