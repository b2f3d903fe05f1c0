package simulation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/peakguard/core/model"
)

// Seed is the initial fleet and site load, as read from a seed file.
type Seed struct {
	BaseLoadKw     float64                `yaml:"baseLoadKw"`
	PenaltyLimitKw float64                `yaml:"penaltyLimitKw"`
	Chargers       []model.ChargerSession `yaml:"chargers"`
}

// DefaultSeed is the reference depot: six vans and trucks early in their
// charging window.
func DefaultSeed() Seed {
	return Seed{
		BaseLoadKw: 332,
		Chargers: []model.ChargerSession{
			{ChargerID: "CH01", VehicleID: "Van #A01", DepartureLabel: "7:30 AM", MinutesUntilDeparture: 90, RequiredEnergyKwh: 140, DeliveredEnergyKwh: 62, MaxChargeRateKw: 180, AllocatedKw: 62, Status: model.StatusThrottled},
			{ChargerID: "CH02", VehicleID: "Van #A02", DepartureLabel: "8:00 AM", MinutesUntilDeparture: 110, RequiredEnergyKwh: 95, DeliveredEnergyKwh: 28, MaxChargeRateKw: 62, Status: model.StatusThrottled},
			{ChargerID: "CH03", VehicleID: "Cargo #A05", DepartureLabel: "8:30 AM", MinutesUntilDeparture: 130, RequiredEnergyKwh: 120, DeliveredEnergyKwh: 45, MaxChargeRateKw: 180, Status: model.StatusThrottled},
			{ChargerID: "CH04", VehicleID: "Truck #A07", DepartureLabel: "9:00 AM", MinutesUntilDeparture: 170, RequiredEnergyKwh: 168, DeliveredEnergyKwh: 35, MaxChargeRateKw: 100, AllocatedKw: 100, Status: model.StatusCharging},
			{ChargerID: "CH05", VehicleID: "Van #A03", DepartureLabel: "7:00 AM", MinutesUntilDeparture: 70, RequiredEnergyKwh: 54, DeliveredEnergyKwh: 41, MaxChargeRateKw: 62, AllocatedKw: 6, Status: model.StatusCharging},
			{ChargerID: "CH07", VehicleID: "Van #A09", DepartureLabel: "9:30 AM", MinutesUntilDeparture: 200, RequiredEnergyKwh: 90, DeliveredEnergyKwh: 20, MaxChargeRateKw: 100, Status: model.StatusThrottled},
		},
	}
}

// LoadSeed reads a YAML (or JSON) seed file and validates its sessions.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if len(s.Chargers) == 0 {
		return Seed{}, fmt.Errorf("seed %s: no chargers", path)
	}
	return s, nil
}

// InitialState builds the starting state from seed and cfg. Seed values
// override the config's base load and limit when set.
func InitialState(seed Seed, cfg Config) (model.SimulationState, error) {
	st := model.SimulationState{
		BuildingBaseLoadKw: cfg.InitialBaseLoadKw,
		PenaltyLimitKw:     cfg.PenaltyLimitKw,
		Sessions:           append([]model.ChargerSession(nil), seed.Chargers...),
		Rationale:          "Initializing allocation engine...",
		ThrottledIDs:       []string{},
	}
	if seed.BaseLoadKw > 0 {
		st.BuildingBaseLoadKw = seed.BaseLoadKw
	}
	if seed.PenaltyLimitKw > 0 {
		st.PenaltyLimitKw = seed.PenaltyLimitKw
	}
	if err := st.AllocationRequest(st.BuildingBaseLoadKw).Validate(); err != nil {
		return model.SimulationState{}, fmt.Errorf("seed: %w", err)
	}
	var ev float64
	for i := range st.Sessions {
		s := &st.Sessions[i]
		if s.DeliveredEnergyKwh > s.RequiredEnergyKwh {
			verr := &model.ValidationError{Fields: map[string]string{
				fmt.Sprintf("chargers[%d].deliveredEnergyKwh", i): "must not exceed requiredEnergyKwh",
			}}
			return model.SimulationState{}, fmt.Errorf("seed: %w", verr)
		}
		switch status, ok := model.ParseStatus(string(s.Status)); {
		case s.Status == "":
			s.Status = model.StatusCharging
		case !ok:
			return model.SimulationState{}, fmt.Errorf("seed: charger %s has unknown status %q", s.ChargerID, s.Status)
		default:
			s.Status = status
		}
		if s.RemainingKwh() <= 0 {
			s.Status, s.AllocatedKw = model.StatusReady, 0
		}
		if s.Status == model.StatusThrottled {
			st.ThrottledIDs = append(st.ThrottledIDs, s.ChargerID)
		}
		ev += s.AllocatedKw
	}
	st.PeakLoadKw = st.BuildingBaseLoadKw + ev
	return st, nil
}
