package model

import (
	"encoding/json"
	"strings"
)

// ChargerStatus is the lifecycle label of a charging session.
type ChargerStatus string

const (
	StatusCharging  ChargerStatus = "Charging"
	StatusThrottled ChargerStatus = "ThrottledByAI"
	StatusReady     ChargerStatus = "Ready"
)

// legacyThrottledLabel is the spelling older allocator services emit.
const legacyThrottledLabel = "Throttled by AI"

// ParseStatus maps a label to a known status. The legacy "Throttled by AI"
// spelling is accepted.
func ParseStatus(s string) (ChargerStatus, bool) {
	switch strings.TrimSpace(s) {
	case string(StatusCharging):
		return StatusCharging, true
	case string(StatusThrottled), legacyThrottledLabel:
		return StatusThrottled, true
	case string(StatusReady):
		return StatusReady, true
	}
	return ChargerStatus(s), false
}

// Valid reports whether s is one of the three known labels.
func (s ChargerStatus) Valid() bool {
	switch s {
	case StatusCharging, StatusThrottled, StatusReady:
		return true
	}
	return false
}

// UnmarshalJSON normalises the legacy label. Unknown labels are kept as is so
// validation can reject them with a field error.
func (s *ChargerStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s, _ = ParseStatus(raw)
	return nil
}

// ChargerSession is one vehicle plugged into one charger.
type ChargerSession struct {
	ChargerID             string        `json:"chargerId" yaml:"chargerId"`
	VehicleID             string        `json:"vehicleId" yaml:"vehicleId"`
	DepartureLabel        string        `json:"departureTime,omitempty" yaml:"departureTime"`
	MinutesUntilDeparture float64       `json:"minutesUntilDeparture" yaml:"minutesUntilDeparture"`
	RequiredEnergyKwh     float64       `json:"requiredEnergyKwh" yaml:"requiredEnergyKwh"`
	DeliveredEnergyKwh    float64       `json:"deliveredEnergyKwh" yaml:"deliveredEnergyKwh"`
	MaxChargeRateKw       float64       `json:"maxChargeRateKw" yaml:"maxChargeRateKw"`
	AllocatedKw           float64       `json:"allocatedKw" yaml:"allocatedKw"`
	Status                ChargerStatus `json:"status" yaml:"status"`
	Reason                string        `json:"reason,omitempty" yaml:"reason"`
}

// RemainingKwh returns the energy still owed to the session, never negative.
func (s ChargerSession) RemainingKwh() float64 {
	return s.Input().RemainingKwh()
}

// Input projects the session onto the fields the allocator consumes.
func (s ChargerSession) Input() ChargerInput {
	return ChargerInput{
		ChargerID:             s.ChargerID,
		VehicleID:             s.VehicleID,
		MinutesUntilDeparture: s.MinutesUntilDeparture,
		RequiredEnergyKwh:     s.RequiredEnergyKwh,
		DeliveredEnergyKwh:    s.DeliveredEnergyKwh,
		MaxChargeRateKw:       s.MaxChargeRateKw,
	}
}
