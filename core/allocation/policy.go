package allocation

import (
	"fmt"
	"math"
)

// Policy holds the tunable constants of the allocator. The zero value is not
// usable; call SetDefaults or start from DefaultPolicy.
type Policy struct {
	// TickMinutes is the simulated duration of one allocation period.
	TickMinutes         float64 `json:"tick_minutes"`
	EnergyWeight        float64 `json:"energy_weight"`
	DeparturePressure   float64 `json:"departure_pressure"`
	MinDepartureMinutes float64 `json:"min_departure_minutes"`
	ThrottleToleranceKw float64 `json:"throttle_tolerance_kw"`
	// ReadyEpsilonKwh is the residual energy under which a session counts as
	// complete after energy integration.
	ReadyEpsilonKwh float64 `json:"ready_epsilon_kwh"`
}

// DefaultPolicy returns the reference constants.
func DefaultPolicy() Policy {
	var p Policy
	p.SetDefaults()
	return p
}

// SetDefaults fills zero fields with the reference constants.
func (p *Policy) SetDefaults() {
	if p.TickMinutes == 0 {
		p.TickMinutes = 5
	}
	if p.EnergyWeight == 0 {
		p.EnergyWeight = 3
	}
	if p.DeparturePressure == 0 {
		p.DeparturePressure = 600
	}
	if p.MinDepartureMinutes == 0 {
		p.MinDepartureMinutes = 10
	}
	if p.ThrottleToleranceKw == 0 {
		p.ThrottleToleranceKw = 3
	}
	if p.ReadyEpsilonKwh == 0 {
		p.ReadyEpsilonKwh = 0.2
	}
}

// Validate rejects policies that would break the allocator arithmetic.
func (p Policy) Validate() error {
	if p.TickMinutes <= 0 {
		return fmt.Errorf("allocation: tick_minutes must be positive")
	}
	if p.MinDepartureMinutes <= 0 {
		return fmt.Errorf("allocation: min_departure_minutes must be positive")
	}
	if p.EnergyWeight < 0 || p.DeparturePressure < 0 {
		return fmt.Errorf("allocation: urgency weights must be non-negative")
	}
	if p.ThrottleToleranceKw < 0 || p.ReadyEpsilonKwh < 0 {
		return fmt.Errorf("allocation: tolerances must be non-negative")
	}
	return nil
}

// TickHours is TickMinutes expressed in hours.
func (p Policy) TickHours() float64 {
	return p.TickMinutes / 60
}

// roundKw rounds v to whole kW inside [0, max]. When rounding up would cross
// max the value is floored instead.
func roundKw(v, max float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > max {
		v = max
	}
	r := math.Round(v)
	if r > max {
		r = math.Floor(max)
	}
	return r
}
