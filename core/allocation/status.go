package allocation

import "github.com/kilianp07/peakguard/core/model"

// DeriveStatus labels a session from its energy position and grant. A session
// whose remaining energy is within readyEpsilonKwh is Ready. A grant more than
// ThrottleToleranceKw below the desired rate is a throttle.
func (p Policy) DeriveStatus(remainingKwh, desiredKw, grantedKw, readyEpsilonKwh float64) model.ChargerStatus {
	switch {
	case remainingKwh <= readyEpsilonKwh:
		return model.StatusReady
	case grantedKw+p.ThrottleToleranceKw < desiredKw:
		return model.StatusThrottled
	default:
		return model.StatusCharging
	}
}
