package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/peakguard/core/logger"
	"github.com/kilianp07/peakguard/core/model"
)

// ErrNoProposal is returned when the external allocator could not produce a
// usable proposal. The wrapped cause explains why.
var ErrNoProposal = errors.New("no external proposal")

// ProposalError carries the reason an external proposal was discarded. It
// matches ErrNoProposal and its cause under errors.Is.
type ProposalError struct {
	Cause error
}

func (e *ProposalError) Error() string {
	return ErrNoProposal.Error() + ": " + e.Cause.Error()
}

func (e *ProposalError) Unwrap() []error { return []error{ErrNoProposal, e.Cause} }

// ExternalAllocator is a black box allocator reached over the network.
type ExternalAllocator interface {
	Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationResponse, error)
}

// ExternalAllocatorFunc adapts a function to ExternalAllocator.
type ExternalAllocatorFunc func(ctx context.Context, req model.AllocationRequest) (model.AllocationResponse, error)

func (f ExternalAllocatorFunc) Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationResponse, error) {
	return f(ctx, req)
}

// ExternalAdapter bounds an ExternalAllocator call with a timeout and checks
// the proposal against the request before handing it on.
type ExternalAdapter struct {
	allocator ExternalAllocator
	timeout   time.Duration
	log       logger.Logger
}

// NewExternalAdapter wraps a. A non-positive timeout defaults to four
// seconds so a call always ends before the next five second tick.
func NewExternalAdapter(a ExternalAllocator, timeout time.Duration, log logger.Logger) *ExternalAdapter {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &ExternalAdapter{allocator: a, timeout: timeout, log: log}
}

// Propose returns a schema checked proposal or a *ProposalError.
func (a *ExternalAdapter) Propose(ctx context.Context, req model.AllocationRequest) (*model.AllocationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.allocator.Allocate(ctx, req)
	externalLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &ProposalError{Cause: err}
	}
	if err := resp.ValidateFor(req); err != nil {
		a.log.Warnf("external proposal rejected: %v", err)
		return nil, &ProposalError{Cause: err}
	}
	return &resp, nil
}
