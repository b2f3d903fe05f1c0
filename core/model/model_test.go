package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() AllocationRequest {
	return AllocationRequest{
		BuildingBaseLoadKw: 400,
		PenaltyLimitKw:     500,
		Chargers: []ChargerInput{
			{ChargerID: "A", VehicleID: "v1", MinutesUntilDeparture: 30, RequiredEnergyKwh: 50, DeliveredEnergyKwh: 10, MaxChargeRateKw: 50},
			{ChargerID: "B", VehicleID: "v2", MinutesUntilDeparture: 60, RequiredEnergyKwh: 50, DeliveredEnergyKwh: 10, MaxChargeRateKw: 50},
		},
	}
}

func TestEVBudgetClampsAtZero(t *testing.T) {
	req := validRequest()
	assert.Equal(t, 100.0, req.EVBudgetKw())
	req.BuildingBaseLoadKw = 520
	assert.Equal(t, 0.0, req.EVBudgetKw())
}

func TestRemainingKwhNeverNegative(t *testing.T) {
	c := ChargerInput{RequiredEnergyKwh: 40, DeliveredEnergyKwh: 45}
	assert.Equal(t, 0.0, c.RemainingKwh())
	s := ChargerSession{RequiredEnergyKwh: 40, DeliveredEnergyKwh: 12.5}
	assert.Equal(t, 27.5, s.RemainingKwh())
}

func TestRequestValidateAcceptsWellFormed(t *testing.T) {
	assert.NoError(t, validRequest().Validate())
}

func TestRequestValidateReportsFields(t *testing.T) {
	req := validRequest()
	req.PenaltyLimitKw = 0
	req.Chargers[1].MaxChargeRateKw = -1
	req.Chargers[0].VehicleID = ""

	err := req.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "penaltyLimitKw")
	assert.Contains(t, verr.Fields, "chargers[1].maxChargeRateKw")
	assert.Contains(t, verr.Fields, "chargers[0].vehicleId")
}

func TestRequestValidateRejectsEmptyAndOversized(t *testing.T) {
	req := validRequest()
	req.Chargers = nil
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = validRequest()
	for i := 0; i < 17; i++ {
		req.Chargers = append(req.Chargers, ChargerInput{ChargerID: string(rune('C' + i)), VehicleID: "v", MaxChargeRateKw: 10})
	}
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestRequestValidateRejectsDuplicateIDs(t *testing.T) {
	req := validRequest()
	req.Chargers[1].ChargerID = "A"
	var verr *ValidationError
	require.ErrorAs(t, req.Validate(), &verr)
	assert.Contains(t, verr.Fields["chargers[1].chargerId"], "duplicate")
}

func TestResponseValidateForCoverage(t *testing.T) {
	req := validRequest()
	ok := AllocationResponse{
		Allocations: []Allocation{
			{ChargerID: "A", AllocatedKw: 50, Status: StatusCharging, Reason: "urgent"},
			{ChargerID: "B", AllocatedKw: 50, Status: StatusCharging, Reason: "ok"},
		},
		Summary: "all good",
	}
	assert.NoError(t, ok.ValidateFor(req))

	missing := ok
	missing.Allocations = ok.Allocations[:1]
	assert.ErrorIs(t, missing.ValidateFor(req), ErrInvalidRequest)

	extra := ok
	extra.Allocations = append(append([]Allocation(nil), ok.Allocations...), Allocation{ChargerID: "Z", Status: StatusReady, Reason: "x"})
	assert.ErrorIs(t, extra.ValidateFor(req), ErrInvalidRequest)

	dup := ok
	dup.Allocations = []Allocation{ok.Allocations[0], ok.Allocations[0]}
	assert.ErrorIs(t, dup.ValidateFor(req), ErrInvalidRequest)

	negative := ok
	negative.Allocations = []Allocation{{ChargerID: "A", AllocatedKw: -3, Status: StatusCharging, Reason: "r"}, ok.Allocations[1]}
	assert.ErrorIs(t, negative.ValidateFor(req), ErrInvalidRequest)

	badStatus := ok
	badStatus.Allocations = []Allocation{{ChargerID: "A", AllocatedKw: 1, Status: "Paused", Reason: "r"}, ok.Allocations[1]}
	assert.ErrorIs(t, badStatus.ValidateFor(req), ErrInvalidRequest)
}

func TestStatusUnmarshalAcceptsLegacyLabel(t *testing.T) {
	var a Allocation
	require.NoError(t, json.Unmarshal([]byte(`{"chargerId":"A","allocatedKw":1,"status":"Throttled by AI","reason":"r"}`), &a))
	assert.Equal(t, StatusThrottled, a.Status)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"ThrottledByAI"`)

	require.NoError(t, json.Unmarshal([]byte(`{"status":"Paused"}`), &a))
	assert.False(t, a.Status.Valid())
}

func TestPlanHelpers(t *testing.T) {
	p := AllocationPlan{Allocations: []Allocation{
		{ChargerID: "A", AllocatedKw: 20, Status: StatusCharging},
		{ChargerID: "B", AllocatedKw: 5, Status: StatusThrottled},
		{ChargerID: "C", AllocatedKw: 0, Status: StatusReady},
	}}
	assert.Equal(t, 25.0, p.TotalKw())
	assert.Equal(t, []string{"B"}, p.Throttled())
	assert.Equal(t, StatusReady, p.ByCharger()["C"].Status)
}

func TestStateCloneIsDeep(t *testing.T) {
	s := SimulationState{
		PenaltyLimitKw: 500,
		Sessions:       []ChargerSession{{ChargerID: "A", MaxChargeRateKw: 10}},
		ThrottledIDs:   []string{"A"},
	}
	c := s.Clone()
	c.Sessions[0].AllocatedKw = 99
	c.ThrottledIDs[0] = "B"
	assert.Equal(t, 0.0, s.Sessions[0].AllocatedKw)
	assert.Equal(t, "A", s.ThrottledIDs[0])

	req := s.AllocationRequest(300)
	assert.Equal(t, 300.0, req.BuildingBaseLoadKw)
	assert.Len(t, req.Chargers, 1)
}
