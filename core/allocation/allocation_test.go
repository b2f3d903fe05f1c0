package allocation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/peakguard/core/model"
	"github.com/kilianp07/peakguard/infra/logger"
)

func charger(id string, remaining, max, minutes float64) model.ChargerInput {
	return model.ChargerInput{
		ChargerID:             id,
		VehicleID:             "veh-" + id,
		MinutesUntilDeparture: minutes,
		RequiredEnergyKwh:     remaining + 10,
		DeliveredEnergyKwh:    10,
		MaxChargeRateKw:       max,
	}
}

func TestUrgency(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, NoDemand, p.Urgency(charger("A", 0, 50, 30)))
	assert.InDelta(t, 40*3+600/60.0, p.Urgency(charger("A", 40, 50, 60)), 1e-9)
	// departure pressure saturates below the minimum window
	assert.Equal(t, p.Urgency(charger("A", 40, 50, 10)), p.Urgency(charger("A", 40, 50, 2)))
	assert.Greater(t, p.Urgency(charger("A", 40, 50, 15)), p.Urgency(charger("A", 40, 50, 90)))
}

func TestDeriveStatus(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, model.StatusReady, p.DeriveStatus(0, 50, 50, 0))
	assert.Equal(t, model.StatusReady, p.DeriveStatus(0.1, 50, 50, 0.2))
	assert.Equal(t, model.StatusCharging, p.DeriveStatus(0.1, 50, 50, 0))
	assert.Equal(t, model.StatusCharging, p.DeriveStatus(10, 50, 47, 0))
	assert.Equal(t, model.StatusThrottled, p.DeriveStatus(10, 50, 46, 0))
}

func TestGreedySingleChargerThrottledByBudget(t *testing.T) {
	g := NewGreedyAllocator(DefaultPolicy())
	plan := g.Allocate(model.AllocationRequest{
		BuildingBaseLoadKw: 450,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("A", 50, 100, 60)},
	})
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, 50.0, plan.Allocations[0].AllocatedKw)
	assert.Equal(t, model.StatusThrottled, plan.Allocations[0].Status)
	assert.Equal(t, model.SourceHeuristic, plan.Source)
}

func TestGreedyCompletedSessionGetsNothing(t *testing.T) {
	g := NewGreedyAllocator(DefaultPolicy())
	plan := g.Allocate(model.AllocationRequest{
		BuildingBaseLoadKw: 470,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("A", 0, 50, 5), charger("B", 40, 50, 60)},
	})
	a, b := plan.Allocations[0], plan.Allocations[1]
	assert.Equal(t, model.Allocation{ChargerID: "A", AllocatedKw: 0, Status: model.StatusReady, Reason: a.Reason}, a)
	assert.Equal(t, 30.0, b.AllocatedKw)
	assert.Equal(t, model.StatusThrottled, b.Status)
}

func TestGreedyOrdersByUrgency(t *testing.T) {
	g := NewGreedyAllocator(DefaultPolicy())
	plan := g.Allocate(model.AllocationRequest{
		BuildingBaseLoadKw: 440,
		PenaltyLimitKw:     500,
		Chargers: []model.ChargerInput{
			charger("low", 5, 50, 200),
			charger("high", 80, 50, 20),
		},
	})
	byID := plan.ByCharger()
	assert.Equal(t, 50.0, byID["high"].AllocatedKw)
	assert.Equal(t, 10.0, byID["low"].AllocatedKw)
	assert.Equal(t, "low", plan.Allocations[0].ChargerID, "output keeps request order")
}

func TestGreedyTieBreakKeepsInputOrder(t *testing.T) {
	g := NewGreedyAllocator(DefaultPolicy())
	req := model.AllocationRequest{
		BuildingBaseLoadKw: 470,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("first", 40, 50, 60), charger("second", 40, 50, 60)},
	}
	plan := g.Allocate(req)
	assert.Equal(t, 30.0, plan.ByCharger()["first"].AllocatedKw)
	assert.Equal(t, 0.0, plan.ByCharger()["second"].AllocatedKw)
	for i := 0; i < 20; i++ {
		assert.Equal(t, plan, g.Allocate(req))
	}
}

func TestGreedyNeverRoundsOverMaxRate(t *testing.T) {
	g := NewGreedyAllocator(DefaultPolicy())
	plan := g.Allocate(model.AllocationRequest{
		BuildingBaseLoadKw: 0,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("A", 90, 7.6, 60)},
	})
	assert.Equal(t, 7.0, plan.Allocations[0].AllocatedKw)
}

func randomRequest(r *rand.Rand) model.AllocationRequest {
	n := 1 + r.IntN(16)
	req := model.AllocationRequest{
		BuildingBaseLoadKw: r.Float64() * 600,
		PenaltyLimitKw:     1 + r.Float64()*599,
	}
	for i := 0; i < n; i++ {
		required := r.Float64() * 200
		req.Chargers = append(req.Chargers, model.ChargerInput{
			ChargerID:             fmt.Sprintf("CH%02d", i),
			VehicleID:             fmt.Sprintf("V%02d", i),
			MinutesUntilDeparture: r.Float64() * 300,
			RequiredEnergyKwh:     required,
			DeliveredEnergyKwh:    r.Float64() * required * 1.2,
			MaxChargeRateKw:       0.5 + r.Float64()*250,
		})
	}
	return req
}

func TestBudgetInvariantHoldsForGreedyAndAdversarialProposals(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	p := DefaultPolicy()
	g := NewGreedyAllocator(p)
	rec := Reconciler{Policy: p}
	for i := 0; i < 500; i++ {
		req := randomRequest(r)
		require.NoError(t, req.Validate())
		budget := req.EVBudgetKw()

		baseline := g.Allocate(req)
		assert.LessOrEqual(t, baseline.TotalKw(), budget)
		assert.Len(t, baseline.Allocations, len(req.Chargers))

		proposal := &model.AllocationResponse{Summary: "adversarial"}
		for _, c := range req.Chargers {
			proposal.Allocations = append(proposal.Allocations, model.Allocation{
				ChargerID:   c.ChargerID,
				AllocatedKw: r.Float64()*2000 - 500,
				Status:      model.StatusCharging,
				Reason:      "more",
			})
		}
		merged, _, err := rec.Reconcile(req, proposal, baseline)
		require.NoError(t, err)
		assert.LessOrEqual(t, merged.TotalKw(), budget+1e-9)
		require.Len(t, merged.Allocations, len(req.Chargers))
		for j, a := range merged.Allocations {
			assert.Equal(t, req.Chargers[j].ChargerID, a.ChargerID)
			assert.GreaterOrEqual(t, a.AllocatedKw, 0.0)
			assert.LessOrEqual(t, a.AllocatedKw, req.Chargers[j].MaxChargeRateKw)
		}
	}
}

func TestReconcileRescalesOverBudgetProposal(t *testing.T) {
	p := DefaultPolicy()
	req := model.AllocationRequest{
		BuildingBaseLoadKw: 450,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("A", 40, 50, 60), charger("B", 40, 50, 60)},
	}
	baseline := NewGreedyAllocator(p).Allocate(req)
	proposal := &model.AllocationResponse{
		Allocations: []model.Allocation{
			{ChargerID: "A", AllocatedKw: 40, Status: model.StatusCharging, Reason: "a"},
			{ChargerID: "B", AllocatedKw: 40, Status: model.StatusCharging, Reason: "b"},
		},
		Summary: "both vans need power",
	}
	plan, stats, err := Reconciler{Policy: p}.Reconcile(req, proposal, baseline)
	require.NoError(t, err)
	assert.True(t, stats.Rescaled)
	assert.InDelta(t, 0.625, stats.Scale, 1e-9)
	for _, a := range plan.Allocations {
		assert.Equal(t, 25.0, a.AllocatedKw)
		assert.Equal(t, model.StatusThrottled, a.Status)
	}
	assert.Equal(t, "both vans need power", plan.Summary)
	assert.Equal(t, model.SourceExternal, plan.Source)
}

func TestReconcileUnderBudgetIsNoop(t *testing.T) {
	p := DefaultPolicy()
	req := model.AllocationRequest{
		BuildingBaseLoadKw: 300,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("A", 40, 50, 60), charger("B", 40, 50, 60)},
	}
	proposal := &model.AllocationResponse{
		Allocations: []model.Allocation{
			{ChargerID: "A", AllocatedKw: 12.4, Status: model.StatusThrottled, Reason: "a"},
			{ChargerID: "B", AllocatedKw: 70, Status: model.StatusCharging, Reason: "b"},
		},
		Summary: "ok",
	}
	plan, stats, err := Reconciler{Policy: p}.Reconcile(req, proposal, NewGreedyAllocator(p).Allocate(req))
	require.NoError(t, err)
	assert.False(t, stats.Rescaled)
	assert.Equal(t, 2, stats.Clamped)
	assert.Equal(t, 12.0, plan.Allocations[0].AllocatedKw)
	assert.Equal(t, model.StatusThrottled, plan.Allocations[0].Status, "external label is kept")
	assert.Equal(t, 50.0, plan.Allocations[1].AllocatedKw)

	again, stats2, err := Reconciler{Policy: p}.Reconcile(req, &model.AllocationResponse{Allocations: plan.Allocations, Summary: "ok"}, plan)
	require.NoError(t, err)
	assert.False(t, stats2.Rescaled)
	assert.Equal(t, plan.Allocations, again.Allocations)
}

func TestReconcileCompletionIsAuthoritative(t *testing.T) {
	p := DefaultPolicy()
	req := model.AllocationRequest{
		BuildingBaseLoadKw: 300,
		PenaltyLimitKw:     500,
		Chargers:           []model.ChargerInput{charger("done", 0, 50, 60), charger("B", 40, 50, 60)},
	}
	proposal := &model.AllocationResponse{
		Allocations: []model.Allocation{{ChargerID: "done", AllocatedKw: 50, Status: model.StatusCharging, Reason: "x"}},
		Summary:     "ok",
	}
	baseline := NewGreedyAllocator(p).Allocate(req)
	plan, stats, err := Reconciler{Policy: p}.Reconcile(req, proposal, baseline)
	require.NoError(t, err)
	assert.Equal(t, 0.0, plan.Allocations[0].AllocatedKw)
	assert.Equal(t, model.StatusReady, plan.Allocations[0].Status)
	assert.Equal(t, 1, stats.Substituted)
	assert.Equal(t, baseline.Allocations[1], plan.Allocations[1])
}

func TestReconcileNilProposalReturnsBaseline(t *testing.T) {
	p := DefaultPolicy()
	req := model.AllocationRequest{BuildingBaseLoadKw: 480, PenaltyLimitKw: 500, Chargers: []model.ChargerInput{charger("A", 40, 50, 60)}}
	baseline := NewGreedyAllocator(p).Allocate(req)
	plan, _, err := Reconciler{Policy: p}.Reconcile(req, nil, baseline)
	require.NoError(t, err)
	assert.Equal(t, baseline.Allocations, plan.Allocations)
	assert.Equal(t, baseline.Summary, plan.Summary)
}

func TestReconcileMissingBaselineIsError(t *testing.T) {
	req := model.AllocationRequest{BuildingBaseLoadKw: 0, PenaltyLimitKw: 500, Chargers: []model.ChargerInput{charger("A", 40, 50, 60)}}
	_, _, err := Reconciler{Policy: DefaultPolicy()}.Reconcile(req, nil, model.AllocationPlan{})
	assert.Error(t, err)
}

func TestEngineHeuristicOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	e := NewEngine(DefaultPolicy(), nil, logger.NopLogger{})
	plan, err := e.Allocate(context.Background(), model.AllocationRequest{
		BuildingBaseLoadKw: 400, PenaltyLimitKw: 500,
		Chargers: []model.ChargerInput{charger("A", 40, 50, 60)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceHeuristic, plan.Source)
	assert.Empty(t, plan.FallbackReason)
	assert.Equal(t, 1.0, testutil.ToFloat64(plansTotal.WithLabelValues("heuristic")))
}

func TestEngineRejectsInvalidRequest(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil, logger.NopLogger{})
	_, err := e.Allocate(context.Background(), model.AllocationRequest{PenaltyLimitKw: 500})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestEngineFallsBackOnTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	slow := ExternalAllocatorFunc(func(ctx context.Context, _ model.AllocationRequest) (model.AllocationResponse, error) {
		<-ctx.Done()
		return model.AllocationResponse{}, ctx.Err()
	})
	p := DefaultPolicy()
	e := NewEngine(p, NewExternalAdapter(slow, 10*time.Millisecond, logger.NopLogger{}), logger.NopLogger{})
	req := model.AllocationRequest{
		BuildingBaseLoadKw: 450, PenaltyLimitKw: 500,
		Chargers: []model.ChargerInput{charger("A", 40, 50, 60), charger("B", 20, 50, 30)},
	}
	plan, err := e.Allocate(context.Background(), req)
	require.NoError(t, err)

	greedy := NewGreedyAllocator(p).Allocate(req)
	assert.Equal(t, greedy.Allocations, plan.Allocations)
	assert.Equal(t, model.SourceFallback, plan.Source)
	assert.Contains(t, plan.FallbackReason, FallbackPrefix)
	assert.Contains(t, plan.FallbackReason, context.DeadlineExceeded.Error())
	assert.Equal(t, 1.0, testutil.ToFloat64(plansTotal.WithLabelValues("fallback")))
}

func TestEngineFallsBackOnCoverageMismatch(t *testing.T) {
	partial := ExternalAllocatorFunc(func(context.Context, model.AllocationRequest) (model.AllocationResponse, error) {
		return model.AllocationResponse{
			Allocations: []model.Allocation{{ChargerID: "A", AllocatedKw: 10, Status: model.StatusCharging, Reason: "r"}},
			Summary:     "only one",
		}, nil
	})
	e := NewEngine(DefaultPolicy(), NewExternalAdapter(partial, time.Second, logger.NopLogger{}), logger.NopLogger{})
	plan, err := e.Allocate(context.Background(), model.AllocationRequest{
		BuildingBaseLoadKw: 300, PenaltyLimitKw: 500,
		Chargers: []model.ChargerInput{charger("A", 40, 50, 60), charger("B", 20, 50, 30)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, plan.Source)
	assert.Contains(t, plan.FallbackReason, "missing charger B")
}

func TestEngineReconcilesExternalProposal(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	greedyOver := ExternalAllocatorFunc(func(_ context.Context, req model.AllocationRequest) (model.AllocationResponse, error) {
		resp := model.AllocationResponse{Summary: "prioritising vans"}
		for _, c := range req.Chargers {
			resp.Allocations = append(resp.Allocations, model.Allocation{ChargerID: c.ChargerID, AllocatedKw: 40, Status: model.StatusCharging, Reason: "go"})
		}
		return resp, nil
	})
	e := NewEngine(DefaultPolicy(), NewExternalAdapter(greedyOver, time.Second, logger.NopLogger{}), logger.NopLogger{})
	plan, err := e.Allocate(context.Background(), model.AllocationRequest{
		BuildingBaseLoadKw: 450, PenaltyLimitKw: 500,
		Chargers: []model.ChargerInput{charger("A", 40, 50, 60), charger("B", 40, 50, 60)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceExternal, plan.Source)
	assert.Equal(t, 50.0, plan.TotalKw())
	assert.Equal(t, 1.0, testutil.ToFloat64(correctionsTotal.WithLabelValues("rescaled")))
}

func TestProposalErrorMatchesCause(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ProposalError{Cause: cause})
	assert.ErrorIs(t, err, ErrNoProposal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", fallbackCause(err))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	p := DefaultPolicy()
	p.MinDepartureMinutes = -1
	assert.Error(t, p.Validate())
	assert.InDelta(t, 5.0/60, DefaultPolicy().TickHours(), 1e-12)
}
