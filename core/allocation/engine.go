package allocation

import (
	"context"
	"errors"

	"github.com/kilianp07/peakguard/core/logger"
	"github.com/kilianp07/peakguard/core/model"
)

// FallbackPrefix starts every fallback reason.
const FallbackPrefix = "AI call failed. "

// Engine runs one allocation pass: greedy baseline first, then an optional
// external proposal reconciled against it. When the external path fails the
// baseline is returned untouched and tagged with a fallback reason.
type Engine struct {
	policy     Policy
	greedy     GreedyAllocator
	reconciler Reconciler
	external   *ExternalAdapter
	log        logger.Logger
}

// NewEngine builds an engine. ext may be nil to run the greedy allocator only.
func NewEngine(p Policy, ext *ExternalAdapter, log logger.Logger) *Engine {
	return &Engine{
		policy:     p,
		greedy:     NewGreedyAllocator(p),
		reconciler: Reconciler{Policy: p},
		external:   ext,
		log:        log,
	}
}

// Policy returns the constants the engine was built with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ExternalEnabled reports whether an external allocator is configured.
func (e *Engine) ExternalEnabled() bool {
	return e.external != nil
}

// Allocate validates req and returns a budget safe plan. The only error
// paths are an invalid request and a baseline that fails to cover req.
func (e *Engine) Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationPlan, error) {
	if err := req.Validate(); err != nil {
		return model.AllocationPlan{}, err
	}
	baseline := e.greedy.Allocate(req)
	budget := req.EVBudgetKw()

	if e.external == nil {
		recordPlan(string(model.SourceHeuristic), baseline.TotalKw(), budget, ReconcileStats{})
		return baseline, nil
	}

	proposal, err := e.external.Propose(ctx, req)
	if err != nil {
		baseline.Source = model.SourceFallback
		baseline.FallbackReason = FallbackPrefix + fallbackCause(err)
		e.log.Warnf("external allocator unavailable, using greedy plan: %v", err)
		recordPlan(string(model.SourceFallback), baseline.TotalKw(), budget, ReconcileStats{})
		return baseline, nil
	}

	plan, stats, err := e.reconciler.Reconcile(req, proposal, baseline)
	if err != nil {
		return model.AllocationPlan{}, err
	}
	if stats.Rescaled || stats.Clamped > 0 || stats.Substituted > 0 {
		e.log.Debugw("external proposal corrected", map[string]any{
			"rescaled":    stats.Rescaled,
			"scale":       stats.Scale,
			"clamped":     stats.Clamped,
			"substituted": stats.Substituted,
		})
	}
	recordPlan(string(model.SourceExternal), plan.TotalKw(), budget, stats)
	return plan, nil
}

func fallbackCause(err error) string {
	var perr *ProposalError
	if errors.As(err, &perr) && perr.Cause != nil {
		return perr.Cause.Error()
	}
	return err.Error()
}
