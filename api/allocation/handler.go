package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/peakguard/api"
	"github.com/kilianp07/peakguard/core/model"
)

const maxBody = 1 << 20

// Allocator produces a budget safe plan for a request.
type Allocator interface {
	Allocate(ctx context.Context, req model.AllocationRequest) (model.AllocationPlan, error)
}

// NewHandler serves POST /api/allocate-load. Invalid payloads get a 400 with
// per field details; fallback plans carry the failure in their summary.
func NewHandler(a Allocator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req model.AllocationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid payload.", map[string]string{"body": err.Error()})
			return
		}
		plan, err := a.Allocate(r.Context(), req)
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			api.WriteError(w, http.StatusBadRequest, "Invalid payload.", verr.Fields)
			return
		case err != nil:
			api.WriteError(w, http.StatusInternalServerError, "Allocator route failed.", map[string]string{"cause": err.Error()})
			return
		}
		resp := plan.Response()
		if plan.Source == model.SourceFallback {
			resp.Summary = plan.FallbackReason
		}
		w.Header().Set("X-Allocation-Source", string(plan.Source))
		api.WriteJSON(w, http.StatusOK, resp)
	})
}
