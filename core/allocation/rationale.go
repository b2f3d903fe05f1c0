package allocation

import (
	"fmt"

	"github.com/kilianp07/peakguard/core/model"
)

func heuristicReason(status model.ChargerStatus) string {
	switch status {
	case model.StatusReady:
		return "Required energy delivered."
	case model.StatusThrottled:
		return "Lower urgency session capped to protect the demand limit."
	default:
		return "Urgency score supports full requested power."
	}
}

func heuristicSummary(budgetKw float64, throttled int) string {
	switch {
	case budgetKw <= 0:
		return "Building load at or above the demand limit. All EV charging paused."
	case throttled == 0:
		return fmt.Sprintf("Budget of %.0f kW covers every session at its requested rate.", budgetKw)
	case throttled > 2:
		return fmt.Sprintf("High building load detected. Throttling %d sessions to hold %.0f kW for EVs.", throttled, budgetKw)
	default:
		return fmt.Sprintf("Allocated %.0f kW by urgency score; %d session(s) throttled to protect the demand limit.", budgetKw, throttled)
	}
}
