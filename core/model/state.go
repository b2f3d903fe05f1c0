package model

import "time"

// Severity grades an entry of the decision feed.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ChartPoint is one sample of the rolling load history.
type ChartPoint struct {
	Time          time.Time `json:"time"`
	BaseLoadKw    float64   `json:"baseLoadKw"`
	EVLoadKw      float64   `json:"evLoadKw"`
	TotalLoadKw   float64   `json:"totalLoadKw"`
	DemandLimitKw float64   `json:"demandLimitKw"`
}

// Decision is one entry of the recent allocator decision feed.
type Decision struct {
	Time     time.Time  `json:"time"`
	Tick     int        `json:"tick"`
	Summary  string     `json:"summary"`
	Source   PlanSource `json:"source"`
	Severity Severity   `json:"severity"`
}

// SimulationState is the full site state owned by the tick driver.
type SimulationState struct {
	TickCount           int              `json:"tickCount"`
	SimulatedAt         time.Time        `json:"simulatedAt"`
	BuildingBaseLoadKw  float64          `json:"buildingBaseLoadKw"`
	PenaltyLimitKw      float64          `json:"penaltyLimitKw"`
	Sessions            []ChargerSession `json:"chargers"`
	History             []ChartPoint     `json:"history"`
	AvoidedPenaltyKw    float64          `json:"avoidedPenaltyKw"`
	EstimatedSavingsUsd float64          `json:"estimatedSavingsUsd"`
	PeakLoadKw          float64          `json:"peakLoadKw"`
	Rationale           string           `json:"rationale"`
	ThrottledIDs        []string         `json:"throttledIds"`
	FallbackUsed        bool             `json:"fallbackUsed"`
	LastError           string           `json:"lastError,omitempty"`
	Decisions           []Decision       `json:"decisions"`
}

// Clone returns a deep copy so readers never share slices with the driver.
func (s SimulationState) Clone() SimulationState {
	out := s
	out.Sessions = append([]ChargerSession(nil), s.Sessions...)
	out.History = append([]ChartPoint(nil), s.History...)
	out.ThrottledIDs = append([]string(nil), s.ThrottledIDs...)
	out.Decisions = append([]Decision(nil), s.Decisions...)
	return out
}

// AllocationRequest builds the allocator input for the given base load.
func (s SimulationState) AllocationRequest(baseLoadKw float64) AllocationRequest {
	req := AllocationRequest{
		BuildingBaseLoadKw: baseLoadKw,
		PenaltyLimitKw:     s.PenaltyLimitKw,
		Chargers:           make([]ChargerInput, 0, len(s.Sessions)),
	}
	for _, sess := range s.Sessions {
		req.Chargers = append(req.Chargers, sess.Input())
	}
	return req
}

// CurrentLoadKw returns the total load of the latest history sample, or the
// base load when no tick has run yet.
func (s SimulationState) CurrentLoadKw() float64 {
	if n := len(s.History); n > 0 {
		return s.History[n-1].TotalLoadKw
	}
	return s.BuildingBaseLoadKw
}
